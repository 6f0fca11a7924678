// Package columnar materializes coerced rows as Parquet files and reads them
// back for verification.
//
// One call to WriteFile produces one immutable output unit. The file is
// written under a temporary name in the destination directory and renamed
// into place only after the Parquet footer has been flushed and synced, so a
// reader never observes a partial unit at its final path.
package columnar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// TempSuffix marks in-flight output units
const TempSuffix = ".tmp"

var codecs = map[string]compress.Compression{
	"none":         compress.Codecs.Uncompressed,
	"uncompressed": compress.Codecs.Uncompressed,
	"snappy":       compress.Codecs.Snappy,
	"gzip":         compress.Codecs.Gzip,
	"zstd":         compress.Codecs.Zstd,
	"lz4":          compress.Codecs.Lz4Raw,
	"brotli":       compress.Codecs.Brotli,
}

// ParseCompression maps a codec name onto a Parquet compression codec
func ParseCompression(name string) (compress.Compression, error) {
	if name == "" {
		return compress.Codecs.Snappy, nil
	}
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "unsupported parquet compression %q", name)
	}
	return c, nil
}

// WriterOptions tune the physical layout of produced files
type WriterOptions struct {
	Compression    string
	RowGroupLength int64
}

// DefaultWriterOptions returns snappy compression and 64Ki-row row groups
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Compression: "snappy", RowGroupLength: 64 * 1024}
}

// ArrowType returns the physical column type of a declared type
func ArrowType(t coerce.Type) (arrow.DataType, error) {
	switch t {
	case coerce.String:
		return arrow.BinaryTypes.String, nil
	case coerce.DateString:
		return arrow.FixedWidthTypes.Date32, nil
	case coerce.NullableInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case coerce.NullableFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeSchema, "unsupported column type %s", t)
	}
}

// ArrowSchema converts a dataset into its arrow schema. Required columns are
// not nullable.
func ArrowSchema(ds *schema.Dataset) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		typ, err := ArrowType(col.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to convert column "+col.Name)
		}
		fields = append(fields, arrow.Field{Name: col.Name, Type: typ, Nullable: !col.Required})
	}
	return arrow.NewSchema(fields, nil), nil
}

// Writer turns rows of one dataset into Parquet files
type Writer struct {
	dataset     *schema.Dataset
	arrowSchema *arrow.Schema
	props       *parquet.WriterProperties
	arrowProps  pqarrow.ArrowWriterProperties
	pool        memory.Allocator
}

// NewWriter creates a writer for ds
func NewWriter(ds *schema.Dataset, opts WriterOptions) (*Writer, error) {
	arrowSchema, err := ArrowSchema(ds)
	if err != nil {
		return nil, err
	}
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}

	propOpts := []parquet.WriterProperty{parquet.WithCompression(codec)}
	if opts.RowGroupLength > 0 {
		propOpts = append(propOpts, parquet.WithMaxRowGroupLength(opts.RowGroupLength))
	}

	pool := memory.NewGoAllocator()
	return &Writer{
		dataset:     ds,
		arrowSchema: arrowSchema,
		props:       parquet.NewWriterProperties(propOpts...),
		arrowProps:  pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool), pqarrow.WithStoreSchema()),
		pool:        pool,
	}, nil
}

// Dataset returns the dataset the writer materializes
func (w *Writer) Dataset() *schema.Dataset { return w.dataset }

// Schema returns the arrow schema of produced files
func (w *Writer) Schema() *arrow.Schema { return w.arrowSchema }

// BuildRecord converts rows into one arrow record. The caller releases it.
func (w *Writer) BuildRecord(rows []schema.Row) (arrow.Record, error) {
	b := array.NewRecordBuilder(w.pool, w.arrowSchema)
	defer b.Release()

	for i := range w.dataset.Columns {
		b.Field(i).Reserve(len(rows))
	}
	for n, row := range rows {
		if len(row) != len(w.dataset.Columns) {
			return nil, errors.Newf(errors.ErrorTypeInternal, "row %d has %d values, dataset %s has %d columns",
				n, len(row), w.dataset.Name, len(w.dataset.Columns))
		}
		for i, v := range row {
			if err := appendValue(b.Field(i), v); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeWrite, "failed to append value for column "+w.dataset.Columns[i].Name)
			}
		}
	}
	return b.NewRecord(), nil
}

func appendValue(builder array.Builder, v coerce.Value) error {
	if !v.Valid() {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.StringBuilder:
		s, ok := v.Str()
		if !ok {
			return fmt.Errorf("expected string, got %s", v.Type())
		}
		b.Append(s)
	case *array.Date32Builder:
		d, ok := v.Date()
		if !ok {
			return fmt.Errorf("expected date, got %s", v.Type())
		}
		b.Append(arrow.Date32FromTime(d))
	case *array.Int64Builder:
		i, ok := v.Int64()
		if !ok {
			return fmt.Errorf("expected int64, got %s", v.Type())
		}
		b.Append(i)
	case *array.Float64Builder:
		f, ok := v.Float64()
		if !ok {
			return fmt.Errorf("expected float64, got %s", v.Type())
		}
		b.Append(f)
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}

// writerOnly hides Close so the parquet writer cannot close the file it
// writes to; the file is synced and closed by WriteFile.
type writerOnly struct{ io.Writer }

// Write encodes rows as one Parquet stream to out
func (w *Writer) Write(out io.Writer, rows []schema.Row) error {
	rec, err := w.BuildRecord(rows)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := pqarrow.NewFileWriter(w.arrowSchema, writerOnly{out}, w.props, w.arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to create parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to write record batch")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "failed to close parquet writer")
	}
	return nil
}

// WriteFile atomically writes rows to path and returns the file size
func (w *Writer) WriteFile(path string, rows []schema.Row) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to create output directory").
			WithDetail("dir", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*"+TempSuffix)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to create temp file").
			WithDetail("dir", dir)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := w.Write(tmp, rows); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to sync output unit")
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to stat output unit")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to close output unit")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to set output unit mode")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeWrite, "failed to publish output unit").
			WithDetail("path", path)
	}
	committed = true
	return info.Size(), nil
}
