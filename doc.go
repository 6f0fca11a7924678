// Package secedgar flattens the SEC EDGAR bulk archives into fixed-schema
// columnar batch files ready for a warehouse load.
//
// # Pipelines
//
// Two archives are read, each in a single streaming pass:
//
//   - submissions.zip produces company master data, one row per company and
//     ticker/exchange pair (6 columns).
//   - companyfacts.zip produces filing-level rows, one per accession number
//     with every fact of the filing aggregated into a JSON array (8 columns),
//     and time-series rows, one per reported fact instance (14 columns).
//     Only facts filed on 10-K or 10-Q forms qualify by default.
//
// Rows are coerced to the declared column types and accumulated per shape.
// Every BatchSize rows are written as <prefix>_batch_<N>.parquet, atomically,
// so a reader never observes a partially written file. A member that cannot
// be decoded or flattened is logged, counted and skipped.
//
// # Layout
//
//	cmd/edgar-etl        command line: company-master, companyfacts, verify, load
//	internal/pipeline    orchestration of one run
//	pkg/archive          streaming zip member decoding
//	pkg/edgar            EDGAR document model and CIK helpers
//	pkg/normalize        the three flattening variants
//	pkg/coerce           tagged nullable values and type coercion
//	pkg/schema           column families of the three output shapes
//	pkg/batch            batch accumulation and numbering
//	pkg/columnar         Parquet writing, reading and schema verification
//	pkg/warehouse        GCS staging and BigQuery load jobs
//	pkg/config           YAML, environment and flag configuration
//
// # Quick Start
//
//	edgar-etl config init edgar.yaml
//	edgar-etl --config edgar.yaml company-master
//	edgar-etl --config edgar.yaml companyfacts --time-series=false
//	edgar-etl --config edgar.yaml verify
//	edgar-etl --config edgar.yaml load --project my-project --bq-dataset edgar --bucket my-staging
package secedgar
