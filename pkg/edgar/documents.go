// Package edgar models the two SEC bulk JSON document shapes read by the
// pipelines: submissions (company master data) and companyfacts (XBRL facts).
//
// Every optional key is declared with the shape it is expected to have. A
// missing key decodes to nil and a value of the wrong shape either decodes to
// nil (List) or fails the whole document, which the pipeline skips and counts.
package edgar

import (
	"sort"

	gojson "github.com/goccy/go-json"
)

// Submission is the subset of a submissions document used for company master data.
// The filings history is intentionally not declared and is skipped by the decoder.
type Submission struct {
	CIK            any  `json:"cik"`
	Name           any  `json:"name"`
	SIC            any  `json:"sic"`
	SICDescription any  `json:"sicDescription"`
	Tickers        List `json:"tickers"`
	Exchanges      List `json:"exchanges"`
}

// List is a JSON array of scalars. Any other JSON value decodes to an empty list.
type List []any

// UnmarshalJSON implements json.Unmarshaler
func (l *List) UnmarshalJSON(data []byte) error {
	var items []any
	if err := gojson.Unmarshal(data, &items); err != nil {
		*l = nil
		return nil
	}
	*l = items
	return nil
}

// At returns element i or nil when i is out of range
func (l List) At(i int) any {
	if i < 0 || i >= len(l) {
		return nil
	}
	return l[i]
}

// CompanyFacts is a companyfacts document: every XBRL fact a filer reported,
// nested taxonomy -> concept -> unit -> fact instances.
type CompanyFacts struct {
	CIK        any                           `json:"cik"`
	EntityName any                           `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"`
}

// Concept holds the fact instances of one taxonomy concept, grouped by unit.
// Instances are kept as raw JSON so they can be re-emitted verbatim.
type Concept struct {
	Label       any                            `json:"label"`
	Description any                            `json:"description"`
	Units       map[string][]gojson.RawMessage `json:"units"`
}

// Fact is one reported data point
type Fact struct {
	Start any `json:"start"`
	End   any `json:"end"`
	Val   any `json:"val"`
	Accn  any `json:"accn"`
	FY    any `json:"fy"`
	FP    any `json:"fp"`
	Form  any `json:"form"`
	Filed any `json:"filed"`
	Frame any `json:"frame"`

	// Raw is the compact JSON object the fact was decoded from
	Raw gojson.RawMessage `json:"-"`
}

// FormType returns the form as a string, or "" when absent
func (f *Fact) FormType() string {
	s, _ := f.Form.(string)
	return s
}

// AccessionNumber returns the accession number and whether it is present
func (f *Fact) AccessionNumber() (string, bool) {
	s, ok := f.Accn.(string)
	return s, ok
}

// FactRef locates a decoded fact inside its document
type FactRef struct {
	Taxonomy string
	Concept  string
	Label    any
	Unit     string
	Fact     Fact
}

// DecodeFact decodes one raw fact instance
func DecodeFact(raw gojson.RawMessage) (Fact, error) {
	var f Fact
	if err := gojson.Unmarshal(raw, &f); err != nil {
		return Fact{}, err
	}
	f.Raw = raw
	return f, nil
}

// WalkFacts visits every fact instance. Taxonomies, concepts and units are
// visited in lexicographic order so repeated runs see facts in the same order;
// instances keep their document order. A fact that is not a JSON object stops
// the walk with its decode error.
func (c *CompanyFacts) WalkFacts(fn func(FactRef) error) error {
	for _, taxonomy := range sortedKeys(c.Facts) {
		concepts := c.Facts[taxonomy]
		for _, name := range sortedKeys(concepts) {
			concept := concepts[name]
			for _, unit := range sortedKeys(concept.Units) {
				for _, raw := range concept.Units[unit] {
					fact, err := DecodeFact(raw)
					if err != nil {
						return err
					}
					ref := FactRef{
						Taxonomy: taxonomy,
						Concept:  name,
						Label:    concept.Label,
						Unit:     unit,
						Fact:     fact,
					}
					if err := fn(ref); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
