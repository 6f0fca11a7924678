// Package normalize flattens EDGAR entity documents into flat rows.
//
// Three variants share one contract: Normalize(cik, document) returns zero or
// more rows of a single output shape.
//
//	CompanyMaster  submissions  -> one row per ticker/exchange pair, at least one
//	FilingLevel    companyfacts -> one row per accession number, facts aggregated
//	TimeSeries     companyfacts -> one row per qualifying fact instance
//
// Rows are not coerced here; values keep their decoded JSON form and the
// pipeline routes them through the dataset's coercion.
package normalize

import (
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// DefaultForms are the form types whose facts qualify for filing outputs
var DefaultForms = []string{"10-K", "10-Q"}

// Normalizer flattens one decoded document of type D into rows of type R
type Normalizer[D any, R schema.Record] interface {
	// Dataset returns the schema the produced rows conform to
	Dataset() *schema.Dataset
	// Normalize flattens doc. cik is the identifier derived from the archive
	// member and is used when the document carries none.
	Normalize(cik string, doc *D) ([]R, error)
}

// FormFilter decides which facts qualify by their form type
type FormFilter map[string]struct{}

// NewFormFilter builds a filter; an empty list means DefaultForms
func NewFormFilter(forms []string) FormFilter {
	if len(forms) == 0 {
		forms = DefaultForms
	}
	f := make(FormFilter, len(forms))
	for _, form := range forms {
		f[form] = struct{}{}
	}
	return f
}

// Allows reports whether facts filed on form qualify
func (f FormFilter) Allows(form string) bool {
	_, ok := f[form]
	return ok
}
