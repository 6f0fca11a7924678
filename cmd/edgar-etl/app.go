package main

import (
	"context"
	"io"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/akhil324/sec-edgar-filings/internal/pipeline"
	"github.com/akhil324/sec-edgar-filings/pkg/batch"
	"github.com/akhil324/sec-edgar-filings/pkg/columnar"
	"github.com/akhil324/sec-edgar-filings/pkg/config"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
	"github.com/akhil324/sec-edgar-filings/pkg/logger"
	"github.com/akhil324/sec-edgar-filings/pkg/observability"
	"github.com/akhil324/sec-edgar-filings/pkg/schema"
)

// app carries state shared by every command of one invocation
type app struct {
	out        io.Writer
	v          *viper.Viper
	configFile string

	cfg      *config.Config
	log      *zap.Logger
	shutdown observability.ShutdownFunc
	prof     profiler
}

func newApp(out io.Writer) *app {
	return &app{out: out, v: viper.New()}
}

// bind routes a flag to a configuration key so it overrides file and env values
func (a *app) bind(flags *pflag.FlagSet, name, key string) {
	if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(err)
	}
}

// setup loads configuration and starts logging and tracing
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.LoadWith(a.v, a.configFile)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}

	a.cfg = cfg
	a.log = logger.Get().With(zap.String("component", "edgar-etl"))

	tracing := cfg.Tracing
	tracing.ServiceVersion = version
	shutdown, err := observability.InitTracing(ctx, tracing)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return a.prof.start()
}

func (a *app) teardown(ctx context.Context) {
	if err := a.prof.stop(); err != nil && a.log != nil {
		a.log.Warn("failed to write profile", zap.Error(err))
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil && a.log != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

func writerOptions(cfg *config.Config) columnar.WriterOptions {
	return columnar.WriterOptions{
		Compression:    cfg.Output.Compression,
		RowGroupLength: cfg.Output.RowGroupLength,
	}
}

func output(ds *schema.Dataset, o config.DatasetOutput) pipeline.Output {
	return pipeline.Output{
		Dataset:    ds,
		OutputDir:  o.OutputDir,
		FilePrefix: o.FilePrefix,
		BatchSize:  o.BatchSize,
	}
}

// submissionsRun translates the submissions section into a run configuration
func submissionsRun(cfg *config.Config) pipeline.Config {
	run := pipeline.Config{
		Archive:       cfg.Submissions.Archive,
		Writer:        writerOptions(cfg),
		ProgressEvery: cfg.Output.ProgressEvery,
	}
	if cfg.Submissions.CompanyMaster.Enabled {
		run.Outputs = append(run.Outputs, output(schema.CompanyMaster, cfg.Submissions.CompanyMaster))
	}
	return run
}

// companyFactsRun translates the companyfacts section into a run configuration
func companyFactsRun(cfg *config.Config) pipeline.Config {
	run := pipeline.Config{
		Archive:       cfg.CompanyFacts.Archive,
		Forms:         cfg.CompanyFacts.Forms,
		Writer:        writerOptions(cfg),
		ProgressEvery: cfg.Output.ProgressEvery,
	}
	if cfg.CompanyFacts.FilingLevel.Enabled {
		run.Outputs = append(run.Outputs, output(schema.FilingLevel, cfg.CompanyFacts.FilingLevel))
	}
	if cfg.CompanyFacts.TimeSeries.Enabled {
		run.Outputs = append(run.Outputs, output(schema.TimeSeries, cfg.CompanyFacts.TimeSeries))
	}
	return run
}

// produced pairs an enabled dataset with its configured output location
type produced struct {
	dataset *schema.Dataset
	output  config.DatasetOutput
}

// enabledOutputs lists every enabled shape, optionally restricted to names
func enabledOutputs(cfg *config.Config, names []string) ([]produced, error) {
	all := []produced{
		{schema.CompanyMaster, cfg.Submissions.CompanyMaster},
		{schema.FilingLevel, cfg.CompanyFacts.FilingLevel},
		{schema.TimeSeries, cfg.CompanyFacts.TimeSeries},
	}

	want := map[string]bool{}
	for _, n := range names {
		if _, ok := schema.ByName(n); !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown dataset %q", n)
		}
		want[n] = true
	}

	var out []produced
	for _, p := range all {
		if !p.output.Enabled {
			continue
		}
		if len(want) > 0 && !want[p.dataset.Name] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (p produced) files() ([]string, error) {
	return batch.List(p.output.OutputDir, p.output.FilePrefix)
}
