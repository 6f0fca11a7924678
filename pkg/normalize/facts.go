package normalize

import (
	"bytes"

	gojson "github.com/goccy/go-json"

	"github.com/akhil324/sec-edgar-filings/pkg/edgar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

var (
	_ Normalizer[edgar.CompanyFacts, FilingRow]     = (*FilingLevel)(nil)
	_ Normalizer[edgar.CompanyFacts, TimeSeriesRow] = (*TimeSeries)(nil)
)

// walkQualifying visits the facts of doc whose form passes forms
func walkQualifying(doc *edgar.CompanyFacts, forms FormFilter, fn func(edgar.FactRef)) error {
	err := doc.WalkFacts(func(ref edgar.FactRef) error {
		if forms.Allows(ref.Fact.FormType()) {
			fn(ref)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeNormalize, "malformed fact instance")
	}
	return nil
}

// FilingRow is one filing-level row
type FilingRow struct {
	CIK             string
	EntityName      any
	AccessionNumber any
	FormType        any
	FiledDate       any
	FiscalYear      any
	FiscalPeriod    any
	AllFactsJSON    string
}

// Values implements schema.Record
func (r FilingRow) Values() []any {
	return []any{r.CIK, r.EntityName, r.AccessionNumber, r.FormType, r.FiledDate,
		r.FiscalYear, r.FiscalPeriod, r.AllFactsJSON}
}

// FilingLevel aggregates qualifying facts into one row per accession number
type FilingLevel struct {
	forms FormFilter
}

// NewFilingLevel creates the filing-level normalizer
func NewFilingLevel(forms []string) *FilingLevel {
	return &FilingLevel{forms: NewFormFilter(forms)}
}

// Dataset implements Normalizer
func (n *FilingLevel) Dataset() *schema.Dataset { return schema.FilingLevel }

type accessionKey struct {
	accn    string
	present bool
}

type filingGroup struct {
	first edgar.Fact
	facts bytes.Buffer
	count int
}

// Normalize groups facts by accession number in first-seen order. The
// filing's form, dates and fiscal period come from the first fact of the
// group; later facts that disagree are kept in the JSON array only. Facts
// without an accession number share one group with a null accession.
func (n *FilingLevel) Normalize(cik string, doc *edgar.CompanyFacts) ([]FilingRow, error) {
	entityCIK := edgar.ResolveCIK(doc.CIK, cik)

	var order []accessionKey
	groups := make(map[accessionKey]*filingGroup)
	var compactErr error
	var scratch bytes.Buffer

	err := walkQualifying(doc, n.forms, func(ref edgar.FactRef) {
		accn, ok := ref.Fact.AccessionNumber()
		key := accessionKey{accn: accn, present: ok}

		g, seen := groups[key]
		if !seen {
			g = &filingGroup{first: ref.Fact}
			g.facts.WriteByte('[')
			groups[key] = g
			order = append(order, key)
		}
		// Compact needs an empty dst
		scratch.Reset()
		if err := gojson.Compact(&scratch, ref.Fact.Raw); err != nil {
			if compactErr == nil {
				compactErr = err
			}
			return
		}
		if g.count > 0 {
			g.facts.WriteByte(',')
		}
		g.facts.Write(scratch.Bytes())
		g.count++
	})
	if err != nil {
		return nil, err
	}
	if compactErr != nil {
		return nil, errors.Wrap(compactErr, errors.ErrorTypeNormalize, "failed to serialize facts")
	}

	rows := make([]FilingRow, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.facts.WriteByte(']')

		var accn any
		if key.present {
			accn = key.accn
		}
		rows = append(rows, FilingRow{
			CIK:             entityCIK,
			EntityName:      doc.EntityName,
			AccessionNumber: accn,
			FormType:        g.first.Form,
			FiledDate:       g.first.Filed,
			FiscalYear:      g.first.FY,
			FiscalPeriod:    g.first.FP,
			AllFactsJSON:    g.facts.String(),
		})
	}
	return rows, nil
}

// TimeSeriesRow is one time-series row
type TimeSeriesRow struct {
	CIK             string
	EntityName      any
	Taxonomy        string
	Concept         string
	Label           any
	Unit            string
	PeriodEndDate   any
	Value           any
	AccessionNumber any
	FiscalYear      any
	FiscalPeriod    any
	FormType        any
	FiledDate       any
	Frame           any
}

// Values implements schema.Record
func (r TimeSeriesRow) Values() []any {
	return []any{r.CIK, r.EntityName, r.Taxonomy, r.Concept, r.Label, r.Unit,
		r.PeriodEndDate, r.Value, r.AccessionNumber, r.FiscalYear, r.FiscalPeriod,
		r.FormType, r.FiledDate, r.Frame}
}

// TimeSeries emits one row per qualifying fact instance
type TimeSeries struct {
	forms FormFilter
}

// NewTimeSeries creates the time-series normalizer
func NewTimeSeries(forms []string) *TimeSeries {
	return &TimeSeries{forms: NewFormFilter(forms)}
}

// Dataset implements Normalizer
func (n *TimeSeries) Dataset() *schema.Dataset { return schema.TimeSeries }

// Normalize maps every fact field 1:1 onto a row
func (n *TimeSeries) Normalize(cik string, doc *edgar.CompanyFacts) ([]TimeSeriesRow, error) {
	entityCIK := edgar.ResolveCIK(doc.CIK, cik)

	var rows []TimeSeriesRow
	err := walkQualifying(doc, n.forms, func(ref edgar.FactRef) {
		f := ref.Fact
		rows = append(rows, TimeSeriesRow{
			CIK:             entityCIK,
			EntityName:      doc.EntityName,
			Taxonomy:        ref.Taxonomy,
			Concept:         ref.Concept,
			Label:           ref.Label,
			Unit:            ref.Unit,
			PeriodEndDate:   f.End,
			Value:           f.Val,
			AccessionNumber: f.Accn,
			FiscalYear:      f.FY,
			FiscalPeriod:    f.FP,
			FormType:        f.Form,
			FiledDate:       f.Filed,
			Frame:           f.Frame,
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
