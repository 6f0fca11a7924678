// Package warehouse loads produced batch files into BigQuery.
//
// A load stages every batch of a dataset under a GCS prefix and then runs a
// single load job that replaces the table contents. Tables are created on the
// first load with the dataset's month partitioning and clustering.
package warehouse

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// FieldType maps a coercion type to its BigQuery column type
func FieldType(t coerce.Type) bigquery.FieldType {
	switch t {
	case coerce.DateString:
		return bigquery.DateFieldType
	case coerce.NullableInt64:
		return bigquery.IntegerFieldType
	case coerce.NullableFloat64:
		return bigquery.FloatFieldType
	default:
		return bigquery.StringFieldType
	}
}

// Schema converts a dataset to a BigQuery schema in column order
func Schema(ds *schema.Dataset) bigquery.Schema {
	bqSchema := make(bigquery.Schema, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		bqSchema = append(bqSchema, &bigquery.FieldSchema{
			Name:        col.Name,
			Type:        FieldType(col.Type),
			Required:    col.Required,
			Description: col.Description,
		})
	}
	return bqSchema
}

// Partitioning returns month partitioning on the dataset's partition field,
// or nil when the dataset is not partitioned.
func Partitioning(ds *schema.Dataset) *bigquery.TimePartitioning {
	if ds.PartitionField == "" {
		return nil
	}
	return &bigquery.TimePartitioning{
		Type:  bigquery.MonthPartitioningType,
		Field: ds.PartitionField,
	}
}

// Clustering returns the dataset's clustering fields, or nil
func Clustering(ds *schema.Dataset) *bigquery.Clustering {
	if len(ds.Clustering) == 0 {
		return nil
	}
	return &bigquery.Clustering{Fields: append([]string(nil), ds.Clustering...)}
}

// TableMetadata is the layout used when a table is created
func TableMetadata(ds *schema.Dataset) *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Name:             ds.Name,
		Description:      fmt.Sprintf("SEC EDGAR %s", strings.ReplaceAll(ds.Name, "_", " ")),
		Schema:           Schema(ds),
		TimePartitioning: Partitioning(ds),
		Clustering:       Clustering(ds),
	}
}

// Table is one dataset and the batch files that make up its contents
type Table struct {
	Dataset *schema.Dataset
	Files   []string
}

// ObjectPrefix is the GCS prefix that holds a dataset's staged files
func ObjectPrefix(prefix, dataset string) string {
	return path.Join(prefix, dataset) + "/"
}

// ObjectName is the staged object for a local batch file
func ObjectName(prefix, dataset, file string) string {
	return ObjectPrefix(prefix, dataset) + filepath.Base(file)
}

// SourceURI matches every staged parquet file of a dataset
func SourceURI(bucket, prefix, dataset string) string {
	return fmt.Sprintf("gs://%s/%s*.parquet", bucket, ObjectPrefix(prefix, dataset))
}
