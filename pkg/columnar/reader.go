package columnar

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// FileInfo summarizes a produced file
type FileInfo struct {
	Path      string
	Rows      int64
	RowGroups int
	Schema    *arrow.Schema
}

func openFile(path string) (*file.Reader, *pqarrow.FileReader, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to open parquet file").
			WithDetail("path", path)
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.NewGoAllocator())
	if err != nil {
		_ = pf.Close()
		return nil, nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to create arrow reader").
			WithDetail("path", path)
	}
	return pf, fr, nil
}

// Inspect reads the footer of a Parquet file
func Inspect(path string) (*FileInfo, error) {
	pf, fr, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	s, err := fr.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to read arrow schema").
			WithDetail("path", path)
	}
	return &FileInfo{Path: path, Rows: pf.NumRows(), RowGroups: pf.NumRowGroups(), Schema: s}, nil
}

// Verify checks that the file at path carries exactly the columns of ds, in
// order, with the declared physical types and nullability.
func Verify(path string, ds *schema.Dataset) (*FileInfo, error) {
	info, err := Inspect(path)
	if err != nil {
		return nil, err
	}
	want, err := ArrowSchema(ds)
	if err != nil {
		return nil, err
	}
	if err := compareSchemas(want, info.Schema); err != nil {
		return info, errors.Wrap(err, errors.ErrorTypeSchema, "schema mismatch").
			WithDetail("path", path).
			WithDetail("dataset", ds.Name)
	}
	return info, nil
}

func compareSchemas(want, got *arrow.Schema) error {
	if want.NumFields() != got.NumFields() {
		return fmt.Errorf("expected %d columns, found %d", want.NumFields(), got.NumFields())
	}
	for i := 0; i < want.NumFields(); i++ {
		w, g := want.Field(i), got.Field(i)
		switch {
		case w.Name != g.Name:
			return fmt.Errorf("column %d: expected %q, found %q", i, w.Name, g.Name)
		case !arrow.TypeEqual(w.Type, g.Type):
			return fmt.Errorf("column %s: expected type %s, found %s", w.Name, w.Type, g.Type)
		case w.Nullable != g.Nullable:
			return fmt.Errorf("column %s: expected nullable=%t, found %t", w.Name, w.Nullable, g.Nullable)
		}
	}
	return nil
}

// ReadRows decodes every row of a file into column-name keyed maps. Dates
// come back as YYYY-MM-DD strings and nulls as nil.
func ReadRows(ctx context.Context, path string) ([]map[string]any, error) {
	pf, fr, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to create record reader").
			WithDetail("path", path)
	}
	defer rr.Release()

	rows := make([]map[string]any, 0, pf.NumRows())
	for rr.Next() {
		rec := rr.Record()
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make(map[string]any, rec.NumCols())
			for c := 0; c < int(rec.NumCols()); c++ {
				row[rec.ColumnName(c)] = columnValue(rec.Column(c), r)
			}
			rows = append(rows, row)
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to read record batch").
			WithDetail("path", path)
	}
	return rows, nil
}

func columnValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch c := col.(type) {
	case *array.String:
		return c.Value(i)
	case *array.Int64:
		return c.Value(i)
	case *array.Float64:
		return c.Value(i)
	case *array.Date32:
		return c.Value(i).ToTime().Format(coerce.DateLayout)
	default:
		return nil
	}
}
