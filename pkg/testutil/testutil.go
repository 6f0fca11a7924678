// Package testutil holds helpers shared by the package tests: bulk archive
// builders, test loggers and a base suite for integration tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Member is one entry of a test archive
type Member struct {
	Name string
	Body string
}

// WriteArchive writes members, in order, to a zip file under a fresh temp
// directory and returns its path
func WriteArchive(t *testing.T, members ...Member) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulk.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.Name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.Body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

// TestLogger returns a logger that writes through t
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger whose entries at or above debug are captured
func ObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}
