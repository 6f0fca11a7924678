package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"10-K", "10-Q"}, cfg.CompanyFacts.Forms)
	assert.Equal(t, 200, cfg.Output.ProgressEvery)
	assert.True(t, cfg.CompanyFacts.AnyFilingOutput())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFile(t *testing.T) {
	t.Setenv("EDGAR_TEST_BUCKET", "edgar-staging")
	path := writeFile(t, `
companyfacts:
  archive: /data/companyfacts.zip
  forms: [10-K]
  time_series:
    enabled: false
output:
  compression: zstd
warehouse:
  bucket: ${EDGAR_TEST_BUCKET}
  timeout: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/companyfacts.zip", cfg.CompanyFacts.Archive)
	assert.Equal(t, []string{"10-K"}, cfg.CompanyFacts.Forms)
	assert.False(t, cfg.CompanyFacts.TimeSeries.Enabled)
	assert.True(t, cfg.CompanyFacts.FilingLevel.Enabled)
	assert.Equal(t, 10000, cfg.CompanyFacts.FilingLevel.BatchSize)
	assert.Equal(t, "zstd", cfg.Output.Compression)
	assert.Equal(t, "edgar-staging", cfg.Warehouse.Bucket)
	assert.Equal(t, 5*time.Minute, cfg.Warehouse.Timeout)
	assert.Equal(t, "US", cfg.Warehouse.Location)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("EDGAR_OUTPUT_COMPRESSION", "gzip")
	t.Setenv("EDGAR_COMPANYFACTS_TIME_SERIES_BATCH_SIZE", "1000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gzip", cfg.Output.Compression)
	assert.Equal(t, 1000, cfg.CompanyFacts.TimeSeries.BatchSize)
}

func TestFlagsWin(t *testing.T) {
	t.Setenv("EDGAR_SUBMISSIONS_ARCHIVE", "/env/submissions.zip")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("archive", "", "")
	require.NoError(t, fs.Parse([]string{"--archive", "/flag/submissions.zip"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("submissions.archive", fs.Lookup("archive")))

	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/flag/submissions.zip", cfg.Submissions.Archive)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown compression", func(c *Config) { c.Output.Compression = "rar" }, false},
		{"zero batch size", func(c *Config) { c.CompanyFacts.TimeSeries.BatchSize = 0 }, false},
		{"zero batch size on disabled output", func(c *Config) {
			c.CompanyFacts.TimeSeries.Enabled = false
			c.CompanyFacts.TimeSeries.BatchSize = 0
		}, true},
		{"missing output dir", func(c *Config) { c.Submissions.CompanyMaster.OutputDir = "" }, false},
		{"glob in prefix", func(c *Config) { c.Submissions.CompanyMaster.FilePrefix = "cm*" }, false},
		{"no forms", func(c *Config) { c.CompanyFacts.Forms = nil }, false},
		{"empty form", func(c *Config) { c.CompanyFacts.Forms = []string{""} }, false},
		{"negative progress", func(c *Config) { c.Output.ProgressEvery = -1 }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"zero concurrency", func(c *Config) { c.Warehouse.Concurrency = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestValidateWarehouse(t *testing.T) {
	w := Default().Warehouse
	err := w.ValidateWarehouse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse.project_id")
	assert.Contains(t, err.Error(), "warehouse.bucket")

	w.ProjectID, w.Dataset, w.Bucket = "p", "d", "b"
	assert.NoError(t, w.ValidateWarehouse())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.CompanyFacts.Forms = []string{"10-K", "10-K/A"}
	cfg.Metrics.Textfile = "/tmp/edgar.prom"

	path := filepath.Join(t.TempDir(), "edgar.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("EDGAR_TEST_DIR", "/srv")
	assert.Equal(t, "archive: /srv/a.zip", substituteEnvVars("archive: ${EDGAR_TEST_DIR}/a.zip"))
	assert.Equal(t, "x: ${unterminated", substituteEnvVars("x: ${unterminated"))
}
