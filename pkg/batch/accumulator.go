// Package batch buffers coerced rows of one dataset and materializes them as
// numbered, immutable output units.
//
// An Accumulator holds at most BatchSize rows. Appending the row that fills
// the buffer writes it out as <prefix>_batch_<N>.parquet and empties it;
// Finalize writes whatever remains. Units are numbered from 0 and a number is
// never handed out twice by the same Accumulator.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// FileExt is the extension of every output unit
const FileExt = ".parquet"

// Sink materializes one output unit atomically
type Sink interface {
	WriteFile(path string, rows []schema.Row) (int64, error)
}

// Config describes where and how often one dataset is flushed
type Config struct {
	Dataset    *schema.Dataset
	OutputDir  string
	FilePrefix string
	BatchSize  int
}

// Flushed describes one written output unit
type Flushed struct {
	Dataset  string
	Batch    int
	Rows     int
	Path     string
	Bytes    int64
	Duration time.Duration
}

// FileName returns the deterministic name of unit n
func FileName(prefix string, n int) string {
	return fmt.Sprintf("%s_batch_%d%s", prefix, n, FileExt)
}

// Accumulator buffers rows for one dataset. It is not safe for concurrent use.
type Accumulator struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger
	tracer trace.Tracer

	buf       []schema.Row
	next      int
	rows      int64
	files     []string
	finalized bool
	onFlush   []func(Flushed)
}

// New creates an accumulator. FilePrefix defaults to the dataset name.
func New(cfg Config, sink Sink, logger *zap.Logger) (*Accumulator, error) {
	if cfg.Dataset == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "batch accumulator requires a dataset")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "batch size must be positive, got %d", cfg.BatchSize).
			WithDetail("dataset", cfg.Dataset.Name)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "batch accumulator requires an output directory").
			WithDetail("dataset", cfg.Dataset.Name)
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = cfg.Dataset.Name
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Accumulator{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With(zap.String("dataset", cfg.Dataset.Name)),
		tracer: otel.Tracer("github.com/akhil324/sec-edgar-filings/pkg/batch"),
		buf:    make([]schema.Row, 0, cfg.BatchSize),
	}, nil
}

// OnFlush registers fn to be called after every successful write
func (a *Accumulator) OnFlush(fn func(Flushed)) {
	a.onFlush = append(a.onFlush, fn)
}

// Prepare creates the output directory and removes units and temp files a
// previous run left under the same prefix. It returns the removed paths.
func (a *Accumulator) Prepare() ([]string, error) {
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWrite, "failed to create output directory").
			WithDetail("dir", a.cfg.OutputDir)
	}

	patterns := []string{
		filepath.Join(a.cfg.OutputDir, a.cfg.FilePrefix+"_batch_*"+FileExt),
		filepath.Join(a.cfg.OutputDir, "."+a.cfg.FilePrefix+"_batch_*"+columnar.TempSuffix),
	}
	var removed []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return removed, errors.Wrap(err, errors.ErrorTypeConfig, "invalid file prefix").
				WithDetail("prefix", a.cfg.FilePrefix)
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return removed, errors.Wrap(err, errors.ErrorTypeWrite, "failed to remove stale output").
					WithDetail("path", m)
			}
			removed = append(removed, m)
		}
	}
	sort.Strings(removed)

	if len(removed) > 0 {
		a.logger.Info("removed stale output", zap.Int("files", len(removed)), zap.String("dir", a.cfg.OutputDir))
	}
	return removed, nil
}

// Append buffers row and flushes when the buffer reaches BatchSize
func (a *Accumulator) Append(ctx context.Context, row schema.Row) error {
	if a.finalized {
		return errors.New(errors.ErrorTypeInternal, "append after finalize").
			WithDetail("dataset", a.cfg.Dataset.Name)
	}
	a.buf = append(a.buf, row)
	if len(a.buf) >= a.cfg.BatchSize {
		return a.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows as the next unit. An empty buffer is a no-op.
func (a *Accumulator) Flush(ctx context.Context) error {
	if len(a.buf) == 0 {
		return nil
	}

	n := a.next
	a.next++
	path := filepath.Join(a.cfg.OutputDir, FileName(a.cfg.FilePrefix, n))

	_, span := a.tracer.Start(ctx, "batch.flush", trace.WithAttributes(
		attribute.String("dataset", a.cfg.Dataset.Name),
		attribute.Int("batch", n),
		attribute.Int("rows", len(a.buf)),
	))
	defer span.End()

	start := time.Now()
	size, err := a.sink.WriteFile(path, a.buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to write batch").
			WithDetail("dataset", a.cfg.Dataset.Name).
			WithDetail("batch", n).
			WithDetail("path", path)
	}

	flushed := Flushed{
		Dataset:  a.cfg.Dataset.Name,
		Batch:    n,
		Rows:     len(a.buf),
		Path:     path,
		Bytes:    size,
		Duration: time.Since(start),
	}
	a.rows += int64(flushed.Rows)
	a.files = append(a.files, path)

	// rows handed to the sink are not reused
	a.buf = make([]schema.Row, 0, a.cfg.BatchSize)

	a.logger.Info("batch written",
		zap.Int("batch", flushed.Batch),
		zap.Int("rows", flushed.Rows),
		zap.String("path", flushed.Path),
		zap.Int64("bytes", flushed.Bytes),
		zap.Duration("duration", flushed.Duration))

	for _, fn := range a.onFlush {
		fn(flushed)
	}
	return nil
}

// Finalize flushes the remainder. Further appends fail.
func (a *Accumulator) Finalize(ctx context.Context) error {
	if a.finalized {
		return nil
	}
	a.finalized = true
	return a.Flush(ctx)
}

// Dataset returns the dataset the accumulator buffers
func (a *Accumulator) Dataset() *schema.Dataset { return a.cfg.Dataset }

// Pending returns the number of buffered rows
func (a *Accumulator) Pending() int { return len(a.buf) }

// Batches returns the number of units written so far
func (a *Accumulator) Batches() int { return len(a.files) }

// Rows returns the number of rows written so far
func (a *Accumulator) Rows() int64 { return a.rows }

// Files returns the written unit paths in order
func (a *Accumulator) Files() []string {
	out := make([]string, len(a.files))
	copy(out, a.files)
	return out
}
