package normalize

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhil324/sec-edgar-filings/pkg/edgar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

func decode[T any](t *testing.T, doc string) *T {
	t.Helper()
	var v T
	require.NoError(t, gojson.Unmarshal([]byte(doc), &v))
	return &v
}

func TestCompanyMasterSingleTicker(t *testing.T) {
	doc := decode[edgar.Submission](t, `{"cik":"320193","name":"Apple Inc.","sic":"3571",
		"sicDescription":"Electronic Computers","tickers":["AAPL"],"exchanges":["Nasdaq"]}`)

	rows, err := NewCompanyMaster(nil).Normalize("0000320193", doc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, MasterRow{
		CIK:            "0000320193",
		CompanyName:    "Apple Inc.",
		SIC:            "3571",
		SICDescription: "Electronic Computers",
		Ticker:         "AAPL",
		Exchange:       "Nasdaq",
	}, rows[0])
}

func TestCompanyMasterPairs(t *testing.T) {
	tests := []struct {
		name      string
		tickers   string
		exchanges string
		want      [][2]any
	}{
		{"k pairs in order", `["BRK-A","BRK-B"]`, `["NYSE","NYSE"]`, [][2]any{{"BRK-A", "NYSE"}, {"BRK-B", "NYSE"}}},
		{"no tickers", `[]`, `[]`, [][2]any{{nil, nil}}},
		{"missing arrays", `null`, `null`, [][2]any{{nil, nil}}},
		{"more tickers than exchanges", `["A","B","C"]`, `["NYSE"]`, [][2]any{{"A", "NYSE"}}},
		{"more exchanges than tickers", `["A"]`, `["NYSE","OTC"]`, [][2]any{{"A", "NYSE"}}},
		{"tickers without exchanges", `["A","B"]`, `[]`, [][2]any{{nil, nil}}},
		{"null exchange kept", `["A","B"]`, `["Nasdaq",null]`, [][2]any{{"A", "Nasdaq"}, {"B", nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decode[edgar.Submission](t, fmt.Sprintf(`{"cik":"1","name":"X","tickers":%s,"exchanges":%s}`,
				tt.tickers, tt.exchanges))

			rows, err := NewCompanyMaster(nil).Normalize("0000000001", doc)
			require.NoError(t, err)
			require.Len(t, rows, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w[0], rows[i].Ticker)
				assert.Equal(t, w[1], rows[i].Exchange)
				assert.Equal(t, "0000000001", rows[i].CIK)
			}
		})
	}
}

func TestCompanyMasterFallsBackToMemberCIK(t *testing.T) {
	doc := decode[edgar.Submission](t, `{"name":"No Cik Corp"}`)
	rows, err := NewCompanyMaster(nil).Normalize("0000000777", doc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0000000777", rows[0].CIK)
}

const appleFacts = `{"cik":320193,"entityName":"Apple Inc.","facts":{
	"dei":{"EntityCommonStockSharesOutstanding":{"label":"Entity Common Stock, Shares Outstanding","units":{"shares":[
		{"end":"2023-10-20","val":15552752000,"accn":"0000320193-23-000106","fy":2023,"fp":"FY","form":"10-K","filed":"2023-11-03"},
		{"end":"2023-07-21","val":15634232000,"accn":"0000320193-23-000077","fy":2023,"fp":"Q3","form":"10-Q","filed":"2023-08-04"}
	]}}},
	"us-gaap":{
		"Revenues":{"label":"Revenues","units":{"USD":[
			{"start":"2022-09-25","end":"2023-09-30","val":383285000000.0,"accn":"0000320193-23-000106","fy":null,"fp":"FY","form":"10-K","filed":"2023-11-03","frame":"CY2023"},
			{"start":"2022-09-25","end":"2023-07-01","val":281310000000,"accn":"0000320193-23-000077","fy":2023,"fp":"Q3","form":"10-Q","filed":"2023-08-04"},
			{"start":"2022-09-25","end":"2023-09-30","val":1,"accn":"0000320193-23-000200","fy":2023,"fp":"FY","form":"8-K","filed":"2023-11-10"}
		]}},
		"Assets":{"label":"Assets","units":{"USD":[
			{"end":"2023-09-30","val":352583000000,"accn":"0000320193-23-000106","fy":2024,"fp":"FY","form":"10-K","filed":"2023-11-04"}
		]}}
	}
}}`

func TestTimeSeriesRows(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, appleFacts)

	rows, err := NewTimeSeries(nil).Normalize("0000320193", doc)
	require.NoError(t, err)
	require.Len(t, rows, 5, "the 8-K fact is filtered out")

	var revenue *TimeSeriesRow
	for i := range rows {
		assert.NotEqual(t, "8-K", rows[i].FormType)
		if rows[i].Concept == "Revenues" && rows[i].FormType == "10-K" {
			revenue = &rows[i]
		}
	}
	require.NotNil(t, revenue)
	assert.Equal(t, "0000320193", revenue.CIK)
	assert.Equal(t, "us-gaap", revenue.Taxonomy)
	assert.Equal(t, "USD", revenue.Unit)
	assert.Equal(t, 383285000000.0, revenue.Value)
	assert.Equal(t, "CY2023", revenue.Frame)
	assert.Nil(t, revenue.FiscalYear)

	row, err := schema.TimeSeries.Coerce(*revenue)
	require.NoError(t, err)
	fy := schema.TimeSeries.Get(row, "fiscal_year")
	assert.False(t, fy.Valid())
	_, isFloat := fy.Float64()
	assert.False(t, isFloat)
	v, _ := schema.TimeSeries.Get(row, "value").Float64()
	assert.Equal(t, 383285000000.0, v)
}

func TestFilingLevelGroupsByAccession(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, appleFacts)

	rows, err := NewFilingLevel(nil).Normalize("0000320193", doc)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byAccn := map[any]FilingRow{}
	for _, r := range rows {
		byAccn[r.AccessionNumber] = r
	}

	annual := byAccn["0000320193-23-000106"]
	assert.Equal(t, "10-K", annual.FormType)
	// first fact in walk order is dei/EntityCommonStockSharesOutstanding
	assert.Equal(t, "2023-11-03", annual.FiledDate)
	assert.Equal(t, float64(2023), annual.FiscalYear)

	for _, r := range rows {
		var facts []map[string]any
		require.NoError(t, gojson.Unmarshal([]byte(r.AllFactsJSON), &facts))
		require.NotEmpty(t, facts)
		for _, f := range facts {
			assert.Equal(t, r.AccessionNumber, f["accn"])
		}
	}

	var annualFacts []map[string]any
	require.NoError(t, gojson.Unmarshal([]byte(annual.AllFactsJSON), &annualFacts))
	assert.Len(t, annualFacts, 3)
}

func TestFilingLevelFirstFactWins(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, `{"cik":1,"facts":{"us-gaap":{
		"A":{"units":{"USD":[{"accn":"x","fy":2020,"fp":"Q1","form":"10-Q","filed":"2020-05-01"}]}},
		"B":{"units":{"USD":[{"accn":"x","fy":2021,"fp":"Q2","form":"10-Q","filed":"2020-05-02"}]}}
	}}}`)

	rows, err := NewFilingLevel(nil).Normalize("0000000001", doc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(2020), rows[0].FiscalYear)
	assert.Equal(t, "Q1", rows[0].FiscalPeriod)
	assert.Equal(t, "2020-05-01", rows[0].FiledDate)
}

func TestFilingLevelMissingAccession(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, `{"facts":{"dei":{"A":{"units":{"USD":[
		{"val":1,"form":"10-K"},{"val":2,"form":"10-K"},{"val":3,"form":"10-K","accn":"y"}]}}}}}`)

	rows, err := NewFilingLevel(nil).Normalize("0000000009", doc)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].AccessionNumber)
	assert.Equal(t, `[{"val":1,"form":"10-K"},{"val":2,"form":"10-K"}]`, rows[0].AllFactsJSON)
	assert.Equal(t, "0000000009", rows[0].CIK)
}

func TestFilingLevelManyFactsPerAccession(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"cik":1,"facts":{"us-gaap":{`)
	for c := 0; c < 3; c++ {
		if c > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `"C%d":{"units":{"USD":[`, c)
		for f := 0; f < 12; f++ {
			if f > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, `{ "end": "2023-%02d-30", "val": %d, "accn": "acc-%d", "form": "10-Q" }`, f%12+1, c*100+f, f%2)
		}
		sb.WriteString(`]}}`)
	}
	sb.WriteString(`}}}`)
	doc := decode[edgar.CompanyFacts](t, sb.String())

	rows, err := NewFilingLevel(nil).Normalize("0000000001", doc)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		var facts []map[string]any
		require.NoError(t, gojson.Unmarshal([]byte(row.AllFactsJSON), &facts))
		require.Len(t, facts, 18)
		for _, fact := range facts {
			assert.Equal(t, row.AccessionNumber, fact["accn"])
		}
		// each compact fact is under 60 bytes
		assert.Less(t, len(row.AllFactsJSON), 18*64)
		assert.NotContains(t, row.AllFactsJSON, " ")
	}
}

func TestFilingAndTimeSeriesAgree(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, appleFacts)

	filings, err := NewFilingLevel(nil).Normalize("0000320193", doc)
	require.NoError(t, err)
	series, err := NewTimeSeries(nil).Normalize("0000320193", doc)
	require.NoError(t, err)

	fromSeries := map[any][]string{}
	for _, r := range series {
		fromSeries[r.AccessionNumber] = append(fromSeries[r.AccessionNumber], fmt.Sprint(r.PeriodEndDate, "|", r.Value))
	}

	total := 0
	for _, f := range filings {
		var facts []map[string]any
		require.NoError(t, gojson.Unmarshal([]byte(f.AllFactsJSON), &facts))
		var fromFiling []string
		for _, fact := range facts {
			fromFiling = append(fromFiling, fmt.Sprint(fact["end"], "|", fact["val"]))
		}
		total += len(facts)

		want := fromSeries[f.AccessionNumber]
		sort.Strings(want)
		sort.Strings(fromFiling)
		assert.Equal(t, want, fromFiling, "accession %v", f.AccessionNumber)
	}
	assert.Equal(t, len(series), total)
}

func TestCustomForms(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, appleFacts)

	rows, err := NewTimeSeries([]string{"8-K"}).Normalize("0000320193", doc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "8-K", rows[0].FormType)
}

func TestMalformedFactIsNormalizeError(t *testing.T) {
	doc := decode[edgar.CompanyFacts](t, `{"facts":{"dei":{"A":{"units":{"USD":["oops"]}}}}}`)

	_, err := NewTimeSeries(nil).Normalize("0000000001", doc)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNormalize))
	assert.True(t, errors.IsRecoverable(err))

	_, err = NewFilingLevel(nil).Normalize("0000000001", doc)
	assert.True(t, errors.IsRecoverable(err))
}
