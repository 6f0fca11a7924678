package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/akhil324/sec-edgar-filings/internal/pipeline"
	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/config"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/metrics"
	"github.com/akhil324/sec-edgar-filings/pkg/warehouse"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "edgar-etl",
		Short: "Flatten SEC EDGAR bulk archives into columnar batch files",
		Long: `edgar-etl converts the SEC EDGAR bulk archives (submissions.zip and
companyfacts.zip) into fixed-schema Parquet batches, verifies them and loads
them into BigQuery.

Configuration is read from the file given with --config, then EDGAR_*
environment variables (e.g. EDGAR_OUTPUT_COMPRESSION=zstd), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("compression", "snappy", "Parquet compression (none, snappy, gzip, zstd, lz4, brotli)")
	flags.String("metrics-textfile", "", "Write run metrics in Prometheus text format to this file")
	flags.StringVar(&a.prof.cpuFile, "cpuprofile", "", "Write a CPU profile to this file")
	flags.StringVar(&a.prof.memFile, "memprofile", "", "Write a heap profile to this file on exit")
	a.bind(flags, "log-level", "logging.level")
	a.bind(flags, "compression", "output.compression")
	a.bind(flags, "metrics-textfile", "metrics.textfile")

	root.AddCommand(
		newCompanyMasterCmd(a),
		newCompanyFactsCmd(a),
		newVerifyCmd(a),
		newLoadCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newCompanyMasterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company-master",
		Short: "Build company master batches from submissions.zip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := submissionsRun(a.cfg)
			if len(run.Outputs) == 0 {
				return errors.New(errors.ErrorTypeConfig, "submissions.company_master is disabled")
			}
			return a.runPipeline(cmd.Context(), pipeline.KindSubmissions, run, pipeline.RunSubmissions)
		},
	}

	flags := cmd.Flags()
	flags.String("archive", "", "Path to submissions.zip")
	flags.String("output-dir", "", "Directory receiving company master batches")
	flags.Int("batch-size", 0, "Rows per batch file")
	a.bind(flags, "archive", "submissions.archive")
	a.bind(flags, "output-dir", "submissions.company_master.output_dir")
	a.bind(flags, "batch-size", "submissions.company_master.batch_size")
	return cmd
}

func newCompanyFactsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companyfacts",
		Short: "Build filing-level and time-series batches from companyfacts.zip",
		Long: `Build filing-level and time-series batches from companyfacts.zip.

Both shapes are produced from a single pass over the archive. Disable one with
--filing-level=false or --time-series=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.CompanyFacts.AnyFilingOutput() {
				return errors.New(errors.ErrorTypeConfig, "both companyfacts outputs are disabled")
			}
			return a.runPipeline(cmd.Context(), pipeline.KindCompanyFacts, companyFactsRun(a.cfg), pipeline.RunCompanyFacts)
		},
	}

	flags := cmd.Flags()
	flags.String("archive", "", "Path to companyfacts.zip")
	flags.StringSlice("forms", nil, "Qualifying form types (default 10-K,10-Q)")
	flags.Bool("filing-level", true, "Produce the filing-level shape")
	flags.Bool("time-series", true, "Produce the time-series shape")
	flags.String("filing-level-dir", "", "Directory receiving filing-level batches")
	flags.String("time-series-dir", "", "Directory receiving time-series batches")
	a.bind(flags, "archive", "companyfacts.archive")
	a.bind(flags, "forms", "companyfacts.forms")
	a.bind(flags, "filing-level", "companyfacts.filing_level.enabled")
	a.bind(flags, "time-series", "companyfacts.time_series.enabled")
	a.bind(flags, "filing-level-dir", "companyfacts.filing_level.output_dir")
	a.bind(flags, "time-series-dir", "companyfacts.time_series.output_dir")
	return cmd
}

type runFunc func(context.Context, pipeline.Config, ...pipeline.Option) (*pipeline.Summary, error)

func (a *app) runPipeline(ctx context.Context, kind pipeline.Kind, run pipeline.Config, fn runFunc) error {
	collector := metrics.NewCollector(string(kind))

	summary, err := fn(ctx, run, pipeline.WithLogger(a.log), pipeline.WithMetrics(collector))
	if summary != nil {
		printSummary(a.out, summary)
	}

	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := collector.WriteTextfile(path); werr != nil {
			a.log.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(werr))
		}
	}
	return err
}

func newVerifyCmd(a *app) *cobra.Command {
	var datasets []string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every produced batch file against its declared schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := verifyOutputs(a.cfg, datasets)
			if err != nil {
				return err
			}
			printVerification(a.out, results)

			failed := 0
			for _, r := range results {
				if r.err != nil {
					failed++
				}
			}
			if failed > 0 {
				return errors.Newf(errors.ErrorTypeSchema, "%d of %d files failed verification", failed, len(results))
			}
			a.log.Info("verification passed", zap.Int("files", len(results)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&datasets, "dataset", nil, "Restrict to these datasets (company_master, filing_level, time_series)")
	return cmd
}

// verifyOutputs checks the files of every enabled shape. A shape without any
// file is reported as a failure.
func verifyOutputs(cfg *config.Config, datasets []string) ([]verified, error) {
	outputs, err := enabledOutputs(cfg, datasets)
	if err != nil {
		return nil, err
	}

	var results []verified
	for _, p := range outputs {
		files, err := p.files()
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			results = append(results, verified{
				dataset: p.dataset.Name,
				path:    p.output.OutputDir,
				err:     errors.New(errors.ErrorTypeSchema, "no batch files"),
			})
			continue
		}
		for _, f := range files {
			r := verified{dataset: p.dataset.Name, path: f}
			info, err := columnar.Verify(f, p.dataset)
			if info != nil {
				r.rows, r.groups = info.Rows, info.RowGroups
			}
			r.err = err
			results = append(results, r)
		}
	}
	return results, nil
}

func newLoadCmd(a *app) *cobra.Command {
	var datasets []string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Stage batch files in GCS and replace the BigQuery tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables(a.cfg, datasets)
			if err != nil {
				return err
			}

			loader, err := warehouse.NewLoader(cmd.Context(), a.cfg.Warehouse, a.log)
			if err != nil {
				return err
			}
			defer loader.Close()

			results, err := loader.Load(cmd.Context(), tables)
			printLoad(a.out, results)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&datasets, "dataset", nil, "Restrict to these datasets (company_master, filing_level, time_series)")
	flags.String("project", "", "GCP project id")
	flags.String("bq-dataset", "", "BigQuery dataset")
	flags.String("bucket", "", "GCS staging bucket")
	a.bind(flags, "project", "warehouse.project_id")
	a.bind(flags, "bq-dataset", "warehouse.dataset")
	a.bind(flags, "bucket", "warehouse.bucket")
	return cmd
}

func loadTables(cfg *config.Config, datasets []string) ([]warehouse.Table, error) {
	outputs, err := enabledOutputs(cfg, datasets)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no enabled datasets to load")
	}

	tables := make([]warehouse.Table, 0, len(outputs))
	for _, p := range outputs {
		files, err := p.files()
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Newf(errors.ErrorTypeLoad, "no batch files for %s in %s", p.dataset.Name, p.output.OutputDir)
		}
		tables = append(tables, warehouse.Table{Dataset: p.dataset, Files: files})
	}
	return tables, nil
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or generate configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a YAML file (default edgar.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "edgar.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf(errors.ErrorTypeConfig, "%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(path, a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal YAML")
			}
			_, err = a.out.Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "edgar-etl v%s\n", version)
			fmt.Fprintf(a.out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(a.out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
