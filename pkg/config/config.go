// Package config provides the configuration surface of the EDGAR pipelines.
//
// The configuration is organized into sections:
//   - Submissions: the submissions archive and its company master output
//   - CompanyFacts: the companyfacts archive, qualifying forms and the
//     filing-level and time-series outputs
//   - Output: physical Parquet settings and progress reporting
//   - Logging, Metrics, Tracing: ambient observability
//   - Warehouse: staging bucket and BigQuery dataset for the load step
//
// Example usage:
//
//	cfg, err := config.Load("edgar.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.CompanyFacts.TimeSeries.BatchSize = 1_000_000
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/logger"
	"github.com/akhil324/sec-edgar-filings/pkg/observability"
)

// Config is the root configuration
type Config struct {
	Submissions  SubmissionsConfig           `mapstructure:"submissions" yaml:"submissions"`
	CompanyFacts CompanyFactsConfig          `mapstructure:"companyfacts" yaml:"companyfacts"`
	Output       OutputConfig                `mapstructure:"output" yaml:"output"`
	Logging      logger.Config               `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig               `mapstructure:"metrics" yaml:"metrics"`
	Tracing      observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Warehouse    WarehouseConfig             `mapstructure:"warehouse" yaml:"warehouse"`
}

// DatasetOutput configures one output shape
type DatasetOutput struct {
	// Enabled toggles the shape
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// OutputDir receives <FilePrefix>_batch_<N>.parquet files
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" validate:"required_if=Enabled true"`
	// FilePrefix names the produced files
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix" validate:"required_if=Enabled true,excludesall=/*?["`
	// BatchSize is the maximum number of rows per file
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"required_if=Enabled true,gte=0"`
}

// SubmissionsConfig configures the company master pipeline
type SubmissionsConfig struct {
	Archive       string        `mapstructure:"archive" yaml:"archive"`
	CompanyMaster DatasetOutput `mapstructure:"company_master" yaml:"company_master"`
}

// CompanyFactsConfig configures the filing pipelines
type CompanyFactsConfig struct {
	Archive string `mapstructure:"archive" yaml:"archive"`
	// Forms lists the form types whose facts qualify
	Forms       []string      `mapstructure:"forms" yaml:"forms" validate:"min=1,dive,required"`
	FilingLevel DatasetOutput `mapstructure:"filing_level" yaml:"filing_level"`
	TimeSeries  DatasetOutput `mapstructure:"time_series" yaml:"time_series"`
}

// OutputConfig holds physical file settings shared by every shape
type OutputConfig struct {
	Compression    string `mapstructure:"compression" yaml:"compression" validate:"oneof=none uncompressed snappy gzip zstd lz4 brotli"`
	RowGroupLength int64  `mapstructure:"row_group_length" yaml:"row_group_length" validate:"gte=0"`
	// ProgressEvery logs progress every N records; 0 disables it
	ProgressEvery int `mapstructure:"progress_every" yaml:"progress_every" validate:"gte=0"`
}

// MetricsConfig controls the end-of-run metrics export
type MetricsConfig struct {
	// Textfile is written in the Prometheus text format when set
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// WarehouseConfig locates the staging bucket and the BigQuery dataset
type WarehouseConfig struct {
	ProjectID       string        `mapstructure:"project_id" yaml:"project_id"`
	Dataset         string        `mapstructure:"dataset" yaml:"dataset"`
	Location        string        `mapstructure:"location" yaml:"location"`
	Bucket          string        `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string        `mapstructure:"prefix" yaml:"prefix"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Submissions: SubmissionsConfig{
			Archive: "data/raw/submissions.zip",
			CompanyMaster: DatasetOutput{
				Enabled:    true,
				OutputDir:  "data/processed/sec_company_master_data",
				FilePrefix: "sec_company_master_data",
				BatchSize:  50000,
			},
		},
		CompanyFacts: CompanyFactsConfig{
			Archive: "data/raw/companyfacts.zip",
			Forms:   []string{"10-K", "10-Q"},
			FilingLevel: DatasetOutput{
				Enabled:    true,
				OutputDir:  "data/processed/company_form_data_filing_level",
				FilePrefix: "company_form_data_filing_level",
				BatchSize:  10000,
			},
			TimeSeries: DatasetOutput{
				Enabled:    true,
				OutputDir:  "data/processed/company_form_data_time_series",
				FilePrefix: "company_form_data_time_series",
				BatchSize:  5000000,
			},
		},
		Output: OutputConfig{
			Compression:    "snappy",
			RowGroupLength: 1 << 20,
			ProgressEvery:  200,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Tracing: observability.DefaultTracingConfig(),
		Warehouse: WarehouseConfig{
			Location:    "US",
			Prefix:      "edgar",
			Concurrency: 4,
			Timeout:     30 * time.Minute,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-section rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	return nil
}

// ValidateWarehouse checks the fields the load step needs
func (w WarehouseConfig) ValidateWarehouse() error {
	var missing []string
	if w.ProjectID == "" {
		missing = append(missing, "warehouse.project_id")
	}
	if w.Dataset == "" {
		missing = append(missing, "warehouse.dataset")
	}
	if w.Bucket == "" {
		missing = append(missing, "warehouse.bucket")
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrorTypeConfig, "missing required settings: "+strings.Join(missing, ", "))
	}
	return nil
}

// AnyFilingOutput reports whether the companyfacts pipeline has work to do
func (c CompanyFactsConfig) AnyFilingOutput() bool {
	return c.FilingLevel.Enabled || c.TimeSeries.Enabled
}
