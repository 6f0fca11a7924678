package warehouse

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/akhil324/sec-edgar-filings/pkg/batch"
	"github.com/akhil324/sec-edgar-filings/pkg/coerce"
	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/config"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
	"github.com/akhil324/sec-edgar-filings/pkg/testutil"
)

// LoaderIntegrationSuite loads a real batch into BigQuery. It runs only when
// EDGAR_IT_PROJECT, EDGAR_IT_DATASET and EDGAR_IT_BUCKET are set.
type LoaderIntegrationSuite struct {
	testutil.IntegrationTestSuite
	cfg config.WarehouseConfig
}

func TestLoaderIntegration(t *testing.T) {
	testutil.IntegrationTest(t)
	env := testutil.RequireEnv(t, "EDGAR_IT_PROJECT", "EDGAR_IT_DATASET", "EDGAR_IT_BUCKET")

	cfg := config.Default().Warehouse
	cfg.ProjectID = env["EDGAR_IT_PROJECT"]
	cfg.Dataset = env["EDGAR_IT_DATASET"]
	cfg.Bucket = env["EDGAR_IT_BUCKET"]
	cfg.Prefix = "edgar-it"

	suite.Run(t, &LoaderIntegrationSuite{cfg: cfg})
}

func (s *LoaderIntegrationSuite) TestCompanyMasterLoad() {
	w, err := columnar.NewWriter(schema.CompanyMaster, columnar.DefaultWriterOptions())
	s.Require().NoError(err)

	path := filepath.Join(s.T().TempDir(), batch.FileName("cm", 0))
	_, err = w.WriteFile(path, []schema.Row{{
		coerce.StringValue("0000320193"),
		coerce.StringValue("Apple Inc."),
		coerce.StringValue("3571"),
		coerce.StringValue("Electronic Computers"),
		coerce.StringValue("AAPL"),
		coerce.StringValue("Nasdaq"),
	}})
	s.Require().NoError(err)

	loader, err := NewLoader(s.Context(), s.cfg, testutil.TestLogger(s.T()))
	s.Require().NoError(err)
	defer loader.Close()

	results, err := loader.Load(s.Context(), []Table{{Dataset: schema.CompanyMaster, Files: []string{path}}})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(int64(1), results[0].OutputRows)
	s.NotEmpty(results[0].JobID)
}
