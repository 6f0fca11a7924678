package warehouse

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/akhil324/sec-edgar-filings/pkg/config"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/observability"
)

// Result reports the load of one table
type Result struct {
	Table      string
	Files      int
	Removed    int
	JobID      string
	OutputRows int64
	InputBytes int64
	Duration   time.Duration
}

// Loader stages batch files in GCS and loads them into BigQuery
type Loader struct {
	cfg    config.WarehouseConfig
	bq     *bigquery.Client
	gcs    *storage.Client
	bucket *storage.BucketHandle
	logger *zap.Logger
}

// NewLoader connects to GCS and BigQuery with cfg
func NewLoader(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (*Loader, error) {
	if err := cfg.ValidateWarehouse(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoad, "failed to create BigQuery client")
	}
	gcs, err := storage.NewClient(ctx, opts...)
	if err != nil {
		_ = bq.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeLoad, "failed to create GCS client")
	}

	return &Loader{
		cfg:    cfg,
		bq:     bq,
		gcs:    gcs,
		bucket: gcs.Bucket(cfg.Bucket),
		logger: logger.With(zap.String("bucket", cfg.Bucket), zap.String("bq_dataset", cfg.Dataset)),
	}, nil
}

// Close releases both clients
func (l *Loader) Close() error {
	bqErr := l.bq.Close()
	if err := l.gcs.Close(); err != nil {
		return err
	}
	return bqErr
}

// Load stages and loads every table in order. It stops at the first failure.
func (l *Loader) Load(ctx context.Context, tables []Table) ([]Result, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	if err := l.ensureDataset(ctx); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(tables))
	for _, t := range tables {
		res, err := l.LoadTable(ctx, t)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// LoadTable replaces one table's contents with its batch files
func (l *Loader) LoadTable(ctx context.Context, t Table) (res Result, err error) {
	name := t.Dataset.Name
	ctx, span := observability.Tracer("warehouse").Start(ctx, "warehouse.load")
	span.SetAttributes(attribute.String("table", name), attribute.Int("files", len(t.Files)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	res = Result{Table: name, Files: len(t.Files)}
	if len(t.Files) == 0 {
		return res, errors.Newf(errors.ErrorTypeLoad, "no batch files for table %s", name)
	}

	removed, err := l.removeStale(ctx, name)
	if err != nil {
		return res, err
	}
	res.Removed = removed

	if err := l.stage(ctx, name, t.Files); err != nil {
		return res, err
	}

	if err := l.ensureTable(ctx, t); err != nil {
		return res, err
	}

	if err := l.runLoadJob(ctx, t, &res); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (l *Loader) ensureDataset(ctx context.Context) error {
	ds := l.bq.Dataset(l.cfg.Dataset)
	if _, err := ds.Metadata(ctx); err == nil {
		return nil
	}
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: l.cfg.Location}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to create dataset").
			WithDetail("dataset", l.cfg.Dataset)
	}
	l.logger.Info("created dataset", zap.String("location", l.cfg.Location))
	return nil
}

func (l *Loader) ensureTable(ctx context.Context, t Table) error {
	table := l.bq.Dataset(l.cfg.Dataset).Table(t.Dataset.Name)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	}
	if err := table.Create(ctx, TableMetadata(t.Dataset)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to create table").
			WithDetail("table", t.Dataset.Name)
	}
	l.logger.Info("created table", zap.String("table", t.Dataset.Name))
	return nil
}

// removeStale deletes objects left under the table prefix by a previous load
func (l *Loader) removeStale(ctx context.Context, dataset string) (int, error) {
	prefix := ObjectPrefix(l.cfg.Prefix, dataset)
	it := l.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	removed := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, errors.Wrap(err, errors.ErrorTypeLoad, "failed to list staged objects").
				WithDetail("prefix", prefix)
		}
		if err := l.bucket.Object(attrs.Name).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
			return removed, errors.Wrap(err, errors.ErrorTypeLoad, "failed to delete staged object").
				WithDetail("object", attrs.Name)
		}
		removed++
	}

	if removed > 0 {
		l.logger.Info("removed stale objects", zap.String("prefix", prefix), zap.Int("count", removed))
	}
	return removed, nil
}

func (l *Loader) stage(ctx context.Context, dataset string, files []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.cfg.Concurrency, 1))

	for _, file := range files {
		object := ObjectName(l.cfg.Prefix, dataset, file)
		g.Go(func() error {
			return l.upload(gctx, file, object)
		})
	}
	return g.Wait()
}

func (l *Loader) upload(ctx context.Context, file, object string) error {
	start := time.Now()

	f, err := os.Open(file) //nolint:gosec // G304: batch files listed by the pipeline
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to open batch file").
			WithDetail("path", file)
	}
	defer f.Close()

	w := l.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/vnd.apache.parquet"

	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to write to GCS").
			WithDetail("object", object)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to close GCS writer").
			WithDetail("object", object)
	}

	l.logger.Debug("batch uploaded to GCS",
		zap.String("object", object),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Source describes the job that replaces a table from its staged files
func Source(bucket, prefix string, t Table) *bigquery.GCSReference {
	ref := bigquery.NewGCSReference(SourceURI(bucket, prefix, t.Dataset.Name))
	ref.SourceFormat = bigquery.Parquet
	return ref
}

func (l *Loader) runLoadJob(ctx context.Context, t Table, res *Result) error {
	table := l.bq.Dataset(l.cfg.Dataset).Table(t.Dataset.Name)

	loader := table.LoaderFrom(Source(l.cfg.Bucket, l.cfg.Prefix, t))
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.TimePartitioning = Partitioning(t.Dataset)
	loader.Clustering = Clustering(t.Dataset)
	loader.Labels = map[string]string{
		"source": "edgar-etl",
		"table":  t.Dataset.Name,
		"files":  fmt.Sprintf("%d", len(t.Files)),
	}

	l.logger.Info("submitting BigQuery load job",
		zap.String("table", t.Dataset.Name),
		zap.Int("files", len(t.Files)))

	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "failed to submit BigQuery load job").
			WithDetail("table", t.Dataset.Name)
	}
	res.JobID = job.ID()

	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "load job failed or timed out").
			WithDetail("job_id", job.ID())
	}
	if err := status.Err(); err != nil {
		for i, jobErr := range status.Errors {
			l.logger.Error("load job error detail",
				zap.String("job_id", job.ID()),
				zap.Int("error_index", i),
				zap.String("message", jobErr.Message),
				zap.String("reason", jobErr.Reason),
				zap.String("location", jobErr.Location))
		}
		return errors.Wrap(err, errors.ErrorTypeLoad, "BigQuery load job failed").
			WithDetail("job_id", job.ID()).
			WithDetail("reasons", jobReasons(status.Errors))
	}

	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			res.OutputRows = stats.OutputRows
			res.InputBytes = stats.InputFileBytes
		}
	}
	l.logger.Info("BigQuery load job completed",
		zap.String("job_id", job.ID()),
		zap.String("table", t.Dataset.Name),
		zap.Int64("output_rows", res.OutputRows),
		zap.Int64("input_file_bytes", res.InputBytes))
	return nil
}

func jobReasons(errs []*bigquery.Error) string {
	seen := map[string]bool{}
	var reasons []string
	for _, e := range errs {
		if e == nil || e.Reason == "" || seen[e.Reason] {
			continue
		}
		seen[e.Reason] = true
		reasons = append(reasons, e.Reason)
	}
	return strings.Join(reasons, ",")
}
