package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("companyfacts")

	c.RecordRead()
	c.RecordRead()
	c.RecordSkipped("decode")
	c.RecordRows("time_series", 10)
	c.RecordRows("time_series", 5)
	c.RecordRows("filing_level", 2)
	c.ObserveBatch("time_series", 15, 2048, 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordsRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordsSkipped.WithLabelValues("decode")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.rowsEmitted.WithLabelValues("time_series")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rowsEmitted.WithLabelValues("filing_level")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batchesWritten.WithLabelValues("time_series")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.bytesWritten.WithLabelValues("time_series")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("submissions")
	b := NewCollector("submissions")
	a.RecordRead()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.recordsRead))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordsRead))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("submissions")
	c.RecordRead()
	c.RecordRows("company_master", 3)
	c.MarkFinished(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "edgar.prom")
	require.NoError(t, c.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `edgar_records_read_total{pipeline="submissions"} 1`), text)
	assert.True(t, strings.Contains(text, `edgar_rows_emitted_total{dataset="company_master",pipeline="submissions"} 3`), text)
	assert.True(t, strings.Contains(text, `edgar_last_run_timestamp_seconds{pipeline="submissions"} 1.7e+09`), text)
}

func TestResourceMonitor(t *testing.T) {
	usage := NewResourceMonitor().Usage()
	assert.Positive(t, usage.MemoryRSS)
	assert.Positive(t, usage.HeapAlloc)
	assert.Positive(t, usage.GoroutineCount)
	assert.Positive(t, ResidentMemory())
}
