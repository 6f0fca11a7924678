package normalize

import (
	"go.uber.org/zap"

	"github.com/akhil324/sec-edgar-filings/pkg/edgar"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

var _ Normalizer[edgar.Submission, MasterRow] = (*CompanyMaster)(nil)

// MasterRow is one company master row
type MasterRow struct {
	CIK            string
	CompanyName    any
	SIC            any
	SICDescription any
	Ticker         any
	Exchange       any
}

// Values implements schema.Record
func (r MasterRow) Values() []any {
	return []any{r.CIK, r.CompanyName, r.SIC, r.SICDescription, r.Ticker, r.Exchange}
}

// CompanyMaster flattens submissions documents. The filing history inside a
// submissions document is not read.
type CompanyMaster struct {
	logger *zap.Logger
}

// NewCompanyMaster creates the company master normalizer
func NewCompanyMaster(logger *zap.Logger) *CompanyMaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyMaster{logger: logger}
}

// Dataset implements Normalizer
func (n *CompanyMaster) Dataset() *schema.Dataset { return schema.CompanyMaster }

// Normalize zips tickers and exchanges positionally. When the arrays differ in
// length only the first min(len) pairs are emitted. An entity with no pairs
// still yields exactly one row with null ticker and exchange.
func (n *CompanyMaster) Normalize(cik string, doc *edgar.Submission) ([]MasterRow, error) {
	base := MasterRow{
		CIK:            edgar.ResolveCIK(doc.CIK, cik),
		CompanyName:    doc.Name,
		SIC:            doc.SIC,
		SICDescription: doc.SICDescription,
	}

	pairs := min(len(doc.Tickers), len(doc.Exchanges))
	if len(doc.Tickers) != len(doc.Exchanges) {
		n.logger.Debug("ticker and exchange lists differ in length, truncating",
			zap.String("cik", base.CIK),
			zap.Int("tickers", len(doc.Tickers)),
			zap.Int("exchanges", len(doc.Exchanges)))
	}

	if pairs == 0 {
		return []MasterRow{base}, nil
	}

	rows := make([]MasterRow, 0, pairs)
	for i := 0; i < pairs; i++ {
		row := base
		row.Ticker = doc.Tickers.At(i)
		row.Exchange = doc.Exchanges.At(i)
		rows = append(rows, row)
	}
	return rows, nil
}
