// Package schema declares the three flat output families produced from EDGAR
// archives and the coercion of normalized rows into typed rows.
package schema

import (
	"fmt"

	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

// Dataset names
const (
	CompanyMasterName = "company_master"
	FilingLevelName   = "filing_level"
	TimeSeriesName    = "time_series"
)

// Column describes one output column
type Column struct {
	Name        string
	Type        coerce.Type
	Required    bool
	Description string
}

// Dataset is a schema family: an ordered column list plus the downstream
// table layout hints used when the produced files are loaded.
type Dataset struct {
	Name    string
	Columns []Column
	// PartitionField is the date column the warehouse table is partitioned on by month
	PartitionField string
	// Clustering lists the key-field group rows are clustered by
	Clustering []string

	index map[string]int
}

// Row is a coerced row, one Value per column in column order
type Row []coerce.Value

// Record is a normalized, not yet coerced row
type Record interface {
	// Values returns raw values in the dataset's column order
	Values() []any
}

func newDataset(name, partition string, clustering []string, cols ...Column) *Dataset {
	d := &Dataset{
		Name:           name,
		Columns:        cols,
		PartitionField: partition,
		Clustering:     clustering,
		index:          make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		d.index[c.Name] = i
	}
	return d
}

// ColumnIndex returns the position of a column or -1
func (d *Dataset) ColumnIndex(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return -1
}

// ColumnNames returns the column names in order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Coerce routes every raw value of a record through the coercion layer.
// A required column that coerces to null is written as the zero value of its
// type; only string columns are declared required.
func (d *Dataset) Coerce(rec Record) (Row, error) {
	raw := rec.Values()
	if len(raw) != len(d.Columns) {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"%s record has %d values, schema declares %d columns", d.Name, len(raw), len(d.Columns))
	}

	row := make(Row, len(raw))
	for i, c := range d.Columns {
		v := coerce.Coerce(raw[i], c.Type)
		if !v.Valid() && c.Required && c.Type == coerce.String {
			v = coerce.StringValue("")
		}
		row[i] = v
	}
	return row, nil
}

// Get returns the value of the named column in row
func (d *Dataset) Get(row Row, name string) coerce.Value {
	i := d.ColumnIndex(name)
	if i < 0 || i >= len(row) {
		return coerce.Null(coerce.String)
	}
	return row[i]
}

// String implements fmt.Stringer
func (d *Dataset) String() string {
	return fmt.Sprintf("%s(%d columns)", d.Name, len(d.Columns))
}

var (
	// CompanyMaster is one row per (company, ticker/exchange pair)
	CompanyMaster = newDataset(CompanyMasterName, "", []string{"cik", "sic"},
		Column{Name: "cik", Type: coerce.String, Required: true, Description: "zero-padded 10 digit Central Index Key"},
		Column{Name: "company_name", Type: coerce.String, Required: true},
		Column{Name: "sic", Type: coerce.String, Description: "Standard Industrial Classification code"},
		Column{Name: "sic_description", Type: coerce.String},
		Column{Name: "ticker", Type: coerce.String},
		Column{Name: "exchange", Type: coerce.String},
	)

	// FilingLevel is one row per (cik, accession number)
	FilingLevel = newDataset(FilingLevelName, "filed_date", []string{"cik", "form_type"},
		Column{Name: "cik", Type: coerce.String, Required: true},
		Column{Name: "entity_name", Type: coerce.String},
		Column{Name: "accession_number", Type: coerce.String},
		Column{Name: "form_type", Type: coerce.String},
		Column{Name: "filed_date", Type: coerce.DateString},
		Column{Name: "fiscal_year", Type: coerce.NullableInt64},
		Column{Name: "fiscal_period", Type: coerce.String},
		Column{Name: "all_facts_json_array", Type: coerce.String, Description: "JSON array of every fact reported in the filing"},
	)

	// TimeSeries is one row per reported fact instance
	TimeSeries = newDataset(TimeSeriesName, "filed_date", []string{"cik", "concept", "form_type"},
		Column{Name: "cik", Type: coerce.String, Required: true},
		Column{Name: "entity_name", Type: coerce.String},
		Column{Name: "taxonomy", Type: coerce.String},
		Column{Name: "concept", Type: coerce.String},
		Column{Name: "label", Type: coerce.String},
		Column{Name: "unit", Type: coerce.String},
		Column{Name: "period_end_date", Type: coerce.DateString},
		Column{Name: "value", Type: coerce.NullableFloat64},
		Column{Name: "accession_number", Type: coerce.String},
		Column{Name: "fiscal_year", Type: coerce.NullableInt64},
		Column{Name: "fiscal_period", Type: coerce.String},
		Column{Name: "form_type", Type: coerce.String},
		Column{Name: "filed_date", Type: coerce.DateString},
		Column{Name: "frame", Type: coerce.String},
	)
)

// All returns the three datasets
func All() []*Dataset {
	return []*Dataset{CompanyMaster, FilingLevel, TimeSeries}
}

// ByName looks up a dataset
func ByName(name string) (*Dataset, bool) {
	for _, d := range All() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
