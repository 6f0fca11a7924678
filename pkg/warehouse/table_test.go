package warehouse

import (
	"context"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/config"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

func TestFieldType(t *testing.T) {
	tests := []struct {
		in   coerce.Type
		want bigquery.FieldType
	}{
		{coerce.String, bigquery.StringFieldType},
		{coerce.DateString, bigquery.DateFieldType},
		{coerce.NullableInt64, bigquery.IntegerFieldType},
		{coerce.NullableFloat64, bigquery.FloatFieldType},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, FieldType(tt.in))
		})
	}
}

func TestSchemaFollowsColumnOrder(t *testing.T) {
	for _, ds := range schema.All() {
		t.Run(ds.Name, func(t *testing.T) {
			bq := Schema(ds)
			require.Len(t, bq, len(ds.Columns))
			for i, col := range ds.Columns {
				assert.Equal(t, col.Name, bq[i].Name)
				assert.Equal(t, col.Required, bq[i].Required)
			}
		})
	}

	ts := Schema(schema.TimeSeries)
	assert.Equal(t, bigquery.FloatFieldType, ts[7].Type)
	assert.Equal(t, bigquery.DateFieldType, ts[12].Type)
}

func TestTableMetadata(t *testing.T) {
	md := TableMetadata(schema.FilingLevel)
	require.NotNil(t, md.TimePartitioning)
	assert.Equal(t, bigquery.MonthPartitioningType, md.TimePartitioning.Type)
	assert.Equal(t, "filed_date", md.TimePartitioning.Field)
	require.NotNil(t, md.Clustering)
	assert.Equal(t, []string{"cik", "form_type"}, md.Clustering.Fields)

	md = TableMetadata(schema.TimeSeries)
	assert.Equal(t, []string{"cik", "concept", "form_type"}, md.Clustering.Fields)

	md = TableMetadata(schema.CompanyMaster)
	assert.Nil(t, md.TimePartitioning)
	assert.Equal(t, []string{"cik", "sic"}, md.Clustering.Fields)
}

func TestClusteringIsCopied(t *testing.T) {
	c := Clustering(schema.CompanyMaster)
	c.Fields[0] = "mutated"
	assert.Equal(t, "cik", schema.CompanyMaster.Clustering[0])
}

func TestObjectNames(t *testing.T) {
	assert.Equal(t, "edgar/time_series/", ObjectPrefix("edgar", "time_series"))
	assert.Equal(t, "time_series/", ObjectPrefix("", "time_series"))
	assert.Equal(t, "edgar/time_series/ts_batch_3.parquet",
		ObjectName("edgar", "time_series", "/data/out/ts_batch_3.parquet"))
	assert.Equal(t, "gs://bkt/edgar/filing_level/*.parquet", SourceURI("bkt", "edgar", "filing_level"))
}

func TestSource(t *testing.T) {
	ref := Source("bkt", "edgar", Table{Dataset: schema.CompanyMaster})
	assert.Equal(t, []string{"gs://bkt/edgar/company_master/*.parquet"}, ref.URIs)
	assert.Equal(t, bigquery.Parquet, ref.SourceFormat)
}

func TestNewLoaderRequiresWarehouseFields(t *testing.T) {
	_, err := NewLoader(context.Background(), config.Default().Warehouse, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestJobReasons(t *testing.T) {
	errs := []*bigquery.Error{
		{Reason: "invalid"},
		nil,
		{Reason: "invalid"},
		{Reason: "backendError"},
		{},
	}
	assert.Equal(t, "invalid,backendError", jobReasons(errs))
}
