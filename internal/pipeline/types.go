package pipeline

import (
	"time"

	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// Kind names the archive a run consumes
type Kind string

const (
	// KindSubmissions produces the company master shape
	KindSubmissions Kind = "submissions"
	// KindCompanyFacts produces the filing-level and time-series shapes
	KindCompanyFacts Kind = "companyfacts"
)

// Output enables one shape for a run
type Output struct {
	Dataset    *schema.Dataset
	OutputDir  string
	FilePrefix string
	BatchSize  int
}

// Config is everything one run needs. Active shapes are listed explicitly;
// a shape that is not in Outputs is not produced.
type Config struct {
	Archive string
	// Forms filters companyfacts facts by form type; empty means 10-K and 10-Q
	Forms   []string
	Outputs []Output
	Writer  columnar.WriterOptions
	// ProgressEvery logs progress every N records; 0 disables it
	ProgressEvery int
	// MaxFailures bounds the failures kept in the summary
	MaxFailures int
}

// DefaultMaxFailures is used when Config.MaxFailures is zero
const DefaultMaxFailures = 100

func (c Config) output(name string) (Output, bool) {
	for _, o := range c.Outputs {
		if o.Dataset != nil && o.Dataset.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

func (c Config) validate(kind Kind) error {
	if c.Archive == "" {
		return errors.New(errors.ErrorTypeConfig, "archive path is required")
	}
	if len(c.Outputs) == 0 {
		return errors.Newf(errors.ErrorTypeConfig, "%s run has no enabled outputs", kind)
	}
	allowed := map[Kind][]string{
		KindSubmissions:  {schema.CompanyMasterName},
		KindCompanyFacts: {schema.FilingLevelName, schema.TimeSeriesName},
	}[kind]

	seen := map[string]bool{}
	for _, o := range c.Outputs {
		if o.Dataset == nil {
			return errors.New(errors.ErrorTypeConfig, "output without dataset")
		}
		ok := false
		for _, name := range allowed {
			ok = ok || name == o.Dataset.Name
		}
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig, "dataset %s cannot be produced from a %s archive", o.Dataset.Name, kind)
		}
		if seen[o.Dataset.Name] {
			return errors.Newf(errors.ErrorTypeConfig, "dataset %s listed twice", o.Dataset.Name)
		}
		seen[o.Dataset.Name] = true
	}
	return nil
}

// Failure is one skipped archive member
type Failure struct {
	Member string
	CIK    string
	Stage  string
	Err    error
}

// DatasetSummary reports the output of one shape
type DatasetSummary struct {
	Dataset string
	Rows    int64
	Batches int
	Files   []string
	Removed int
}

// Summary reports one run
type Summary struct {
	RunID          string
	Kind           Kind
	Archive        string
	RecordsRead    int64
	RecordsSkipped int64
	Ignored        int
	Datasets       []DatasetSummary
	Failures       []Failure
	Started        time.Time
	Duration       time.Duration
}

// Dataset returns the summary of one shape
func (s *Summary) Dataset(name string) (DatasetSummary, bool) {
	for _, d := range s.Datasets {
		if d.Dataset == name {
			return d, true
		}
	}
	return DatasetSummary{}, false
}

// RowsEmitted sums rows over every shape
func (s *Summary) RowsEmitted() int64 {
	var n int64
	for _, d := range s.Datasets {
		n += d.Rows
	}
	return n
}

// BatchesWritten sums batches over every shape
func (s *Summary) BatchesWritten() int {
	n := 0
	for _, d := range s.Datasets {
		n += d.Batches
	}
	return n
}
