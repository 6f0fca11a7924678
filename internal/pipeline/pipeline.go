// Package pipeline drives one end-to-end conversion of an EDGAR bulk archive
// into Parquet batches.
//
// A run opens the archive, decodes members one at a time in archive order,
// hands every document to the normalizers of the active shapes, coerces the
// resulting rows and appends them to one batch accumulator per shape. When
// the archive is exhausted every accumulator is finalized.
//
// # Basic Usage
//
//	summary, err := pipeline.RunCompanyFacts(ctx, pipeline.Config{
//	    Archive: "companyfacts.zip",
//	    Outputs: []pipeline.Output{{
//	        Dataset:   schema.TimeSeries,
//	        OutputDir: "out/time_series",
//	        BatchSize: 500000,
//	    }},
//	}, pipeline.WithLogger(logger))
//
// # Failure handling
//
// A member that is not valid JSON, or a document that cannot be flattened, is
// logged, counted and skipped; rows of a skipped document never reach any
// accumulator. Anything else (the archive cannot be read, a batch cannot be
// written) stops the run. Units flushed before the failure stay intact.
//
// Memory use is bounded by the batch sizes: at most one buffer of BatchSize
// rows per shape plus the document being processed.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akhil324/sec-edgar-filings/pkg/archive"
	"github.com/akhil324/sec-edgar-filings/pkg/batch"
	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/edgar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/logger"
	"github.com/akhil324/sec-edgar-filings/pkg/metrics"
	"github.com/akhil324/sec-edgar-filings/pkg/normalize"
	"github.com/akhil324/sec-edgar-filings/pkg/observability"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// Option customizes a run
type Option func(*runner)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records run counters into c
func WithMetrics(c *metrics.Collector) Option {
	return func(r *runner) { r.metrics = c }
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(r *runner) { r.runID = id }
}

// RunSubmissions converts a submissions archive into company master batches
func RunSubmissions(ctx context.Context, cfg Config, opts ...Option) (*Summary, error) {
	r, err := newRunner(KindSubmissions, cfg, opts...)
	if err != nil {
		return nil, err
	}

	var shapes []shape[edgar.Submission]
	if out, ok := cfg.output(schema.CompanyMasterName); ok {
		acc, err := r.accumulator(out)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, bind[edgar.Submission, normalize.MasterRow](normalize.NewCompanyMaster(r.logger), acc))
	}
	return execute(ctx, r, shapes)
}

// RunCompanyFacts converts a companyfacts archive into filing-level and
// time-series batches, producing both from a single pass when both are active
func RunCompanyFacts(ctx context.Context, cfg Config, opts ...Option) (*Summary, error) {
	r, err := newRunner(KindCompanyFacts, cfg, opts...)
	if err != nil {
		return nil, err
	}

	var shapes []shape[edgar.CompanyFacts]
	if out, ok := cfg.output(schema.FilingLevelName); ok {
		acc, err := r.accumulator(out)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, bind[edgar.CompanyFacts, normalize.FilingRow](normalize.NewFilingLevel(cfg.Forms), acc))
	}
	if out, ok := cfg.output(schema.TimeSeriesName); ok {
		acc, err := r.accumulator(out)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, bind[edgar.CompanyFacts, normalize.TimeSeriesRow](normalize.NewTimeSeries(cfg.Forms), acc))
	}
	return execute(ctx, r, shapes)
}

// shape binds one normalizer to the accumulator of its dataset
type shape[D any] struct {
	dataset *schema.Dataset
	acc     *batch.Accumulator
	rows    func(cik string, doc *D) ([]schema.Row, error)
}

func bind[D any, R schema.Record](n normalize.Normalizer[D, R], acc *batch.Accumulator) shape[D] {
	ds := n.Dataset()
	return shape[D]{
		dataset: ds,
		acc:     acc,
		rows: func(cik string, doc *D) ([]schema.Row, error) {
			recs, err := n.Normalize(cik, doc)
			if err != nil {
				return nil, err
			}
			out := make([]schema.Row, 0, len(recs))
			for _, rec := range recs {
				row, err := ds.Coerce(rec)
				if err != nil {
					return nil, err
				}
				out = append(out, row)
			}
			return out, nil
		},
	}
}

type runner struct {
	kind    Kind
	cfg     Config
	runID   string
	logger  *zap.Logger
	metrics *metrics.Collector
	monitor *metrics.ResourceMonitor
	tracer  trace.Tracer

	summary *Summary
}

func newRunner(kind Kind, cfg Config, opts ...Option) (*runner, error) {
	if err := cfg.validate(kind); err != nil {
		return nil, err
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}

	r := &runner{
		kind:    kind,
		cfg:     cfg,
		logger:  zap.NewNop(),
		monitor: metrics.NewResourceMonitor(),
		tracer:  observability.Tracer("github.com/akhil324/sec-edgar-filings/internal/pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewCollector(string(kind))
	}
	r.logger = logger.FromContext(r.runContext(context.Background()), r.logger)
	r.summary = &Summary{RunID: r.runID, Kind: kind, Archive: cfg.Archive}
	return r, nil
}

// runContext tags ctx with the run id and archive for loggers and spans
func (r *runner) runContext(ctx context.Context) context.Context {
	return logger.WithRun(ctx, r.runID, r.cfg.Archive)
}

func (r *runner) accumulator(out Output) (*batch.Accumulator, error) {
	w, err := columnar.NewWriter(out.Dataset, r.cfg.Writer)
	if err != nil {
		return nil, err
	}
	acc, err := batch.New(batch.Config{
		Dataset:    out.Dataset,
		OutputDir:  out.OutputDir,
		FilePrefix: out.FilePrefix,
		BatchSize:  out.BatchSize,
	}, w, r.logger)
	if err != nil {
		return nil, err
	}
	acc.OnFlush(func(f batch.Flushed) {
		r.metrics.ObserveBatch(f.Dataset, f.Rows, f.Bytes, f.Duration)
	})
	return acc, nil
}

func execute[D any](ctx context.Context, r *runner, shapes []shape[D]) (_ *Summary, err error) {
	r.summary.Started = time.Now()
	ctx = r.runContext(ctx)

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", r.runID),
		attribute.String("kind", string(r.kind)),
		attribute.String("archive", r.cfg.Archive),
	))
	removed := make([]int, len(shapes))
	defer func() {
		for i, s := range shapes {
			r.summary.Datasets = append(r.summary.Datasets, DatasetSummary{
				Dataset: s.dataset.Name,
				Rows:    s.acc.Rows(),
				Batches: s.acc.Batches(),
				Files:   s.acc.Files(),
				Removed: removed[i],
			})
		}
		r.finish(span, err)
		span.End()
	}()

	datasets := make([]string, 0, len(shapes))
	for _, s := range shapes {
		datasets = append(datasets, s.dataset.Name)
	}
	r.logger.Info("starting pipeline",
		zap.String("kind", string(r.kind)),
		zap.Strings("datasets", datasets))

	reader, err := archive.Open(r.cfg.Archive, r.logger)
	if err != nil {
		return r.summary, err
	}
	defer reader.Close()
	r.summary.Ignored = reader.Ignored()

	// prior output is only replaced once the archive is readable
	for i, s := range shapes {
		stale, err := s.acc.Prepare()
		if err != nil {
			return r.summary, err
		}
		removed[i] = len(stale)
	}

	pending := make([][]schema.Row, len(shapes))
	for doc, derr := range archive.Decode[D](ctx, reader) {
		if derr != nil {
			if !errors.IsRecoverable(derr) {
				return r.summary, derr
			}
			r.summary.RecordsRead++
			r.metrics.RecordRead()
			r.skip(doc.Member, doc.CIK, "decode", derr)
			progress(r, shapes)
			continue
		}
		r.summary.RecordsRead++
		r.metrics.RecordRead()

		if nerr := normalizeAll(shapes, doc, pending); nerr != nil {
			if !errors.IsRecoverable(nerr) {
				return r.summary, nerr
			}
			r.skip(doc.Member, doc.CIK, "normalize", nerr)
			progress(r, shapes)
			continue
		}

		for i, s := range shapes {
			for _, row := range pending[i] {
				if err := s.acc.Append(ctx, row); err != nil {
					return r.summary, err
				}
			}
			r.metrics.RecordRows(s.dataset.Name, len(pending[i]))
			pending[i] = nil
		}
		progress(r, shapes)
	}

	for _, s := range shapes {
		if err := s.acc.Finalize(ctx); err != nil {
			return r.summary, err
		}
	}

	return r.summary, nil
}

// normalizeAll flattens doc for every shape before anything is appended, so a
// document that fails for one shape contributes rows to none.
func normalizeAll[D any](shapes []shape[D], doc archive.Document[D], pending [][]schema.Row) error {
	for i, s := range shapes {
		rows, err := s.rows(doc.CIK, &doc.Body)
		if err != nil {
			for j := range pending {
				pending[j] = nil
			}
			return err
		}
		pending[i] = rows
	}
	return nil
}

func (r *runner) skip(member, cik, stage string, err error) {
	r.summary.RecordsSkipped++
	r.metrics.RecordSkipped(stage)
	if len(r.summary.Failures) < r.cfg.MaxFailures {
		r.summary.Failures = append(r.summary.Failures, Failure{Member: member, CIK: cik, Stage: stage, Err: err})
	}
	r.logger.Warn("skipping record", append([]zap.Field{
		zap.String("member", member),
		zap.String("cik", cik),
		zap.String("stage", stage),
	}, errors.Fields(err)...)...)
}

func progress[D any](r *runner, shapes []shape[D]) {
	every := int64(r.cfg.ProgressEvery)
	if every <= 0 || r.summary.RecordsRead%every != 0 {
		return
	}
	usage := r.monitor.Usage()
	r.metrics.SetResidentMemory(usage.MemoryRSS)

	fields := []zap.Field{
		zap.Int64("records_read", r.summary.RecordsRead),
		zap.Int64("records_skipped", r.summary.RecordsSkipped),
		zap.Uint64("rss_bytes", usage.MemoryRSS),
		zap.Uint64("heap_bytes", usage.HeapAlloc),
	}
	for _, s := range shapes {
		fields = append(fields,
			zap.Int64(s.dataset.Name+"_rows", s.acc.Rows()+int64(s.acc.Pending())),
			zap.Int(s.dataset.Name+"_batches", s.acc.Batches()))
	}
	r.logger.Info("progress", fields...)
}

func (r *runner) finish(span trace.Span, err error) {
	r.summary.Duration = time.Since(r.summary.Started)
	r.metrics.SetResidentMemory(r.monitor.Usage().MemoryRSS)
	r.metrics.MarkFinished(time.Now())

	span.SetAttributes(
		attribute.Int64("records_read", r.summary.RecordsRead),
		attribute.Int64("records_skipped", r.summary.RecordsSkipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		r.logger.Error("pipeline failed",
			zap.Int64("records_read", r.summary.RecordsRead),
			zap.Int64("records_skipped", r.summary.RecordsSkipped),
			zap.Duration("duration", r.summary.Duration),
			zap.Error(err))
		return
	}

	r.logger.Info("pipeline completed",
		zap.Int64("records_read", r.summary.RecordsRead),
		zap.Int64("records_skipped", r.summary.RecordsSkipped),
		zap.Int64("rows_emitted", r.summary.RowsEmitted()),
		zap.Int("batches_written", r.summary.BatchesWritten()),
		zap.Duration("duration", r.summary.Duration))
}
