package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/config"
	"github.com/gwlsn/rdcompare/internal/logger"
	"github.com/gwlsn/rdcompare/internal/metrics"
	"github.com/gwlsn/rdcompare/internal/report"
	"github.com/gwlsn/rdcompare/internal/store"
)

type compareOptions struct {
	input   string
	output  string
	fromDB  bool
	encoder string
	commit  string
	preset  string
	db      string
	plots   string
	bdsnr   bool
	workers int
}

func newCompareCmd(a *app) *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compute BD-rate of every configuration against a baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, a.cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Measurement CSV to read")
	f.StringVarP(&opts.output, "output", "o", "bd_rates.csv", "Comparison CSV to write (\"-\" for stdout)")
	f.BoolVar(&opts.fromDB, "from-db", false, "Read measurements from the database instead of --input")
	f.StringVarP(&opts.encoder, "encoder", "e", "", "Baseline encoder")
	f.StringVarP(&opts.commit, "commit", "c", "", "Baseline commit")
	f.StringVarP(&opts.preset, "preset", "p", "", "Baseline preset")
	f.StringVar(&opts.db, "db", "", "SQLite database to upsert comparisons into")
	f.StringVar(&opts.plots, "plots", "", "Directory to write RD-curve plots into")
	f.BoolVar(&opts.bdsnr, "bdsnr", false, "Add a BD-SNR column per metric")
	f.IntVar(&opts.workers, "workers", 0, "Videos processed concurrently")
	cmd.MarkFlagsMutuallyExclusive("input", "from-db")
	cmd.MarkFlagsOneRequired("input", "from-db")
	return cmd
}

// applyCompareFlags overrides config values with the flags the user set.
func applyCompareFlags(cmd *cobra.Command, cfg *config.Config, opts *compareOptions) {
	f := cmd.Flags()
	if f.Changed("encoder") {
		cfg.Baseline.Encoder = opts.encoder
	}
	if f.Changed("commit") {
		cfg.Baseline.Commit = opts.commit
	}
	if f.Changed("preset") {
		cfg.Baseline.Preset = opts.preset
	}
	if f.Changed("db") {
		cfg.DatabasePath = opts.db
	}
	if f.Changed("plots") {
		cfg.PlotDir = opts.plots
	}
	if f.Changed("bdsnr") {
		cfg.IncludeBDSNR = opts.bdsnr
	}
	if f.Changed("workers") {
		cfg.Workers = opts.workers
	}
}

// measurementSchema is the v1 fixed layout with the configured metrics as
// its quality columns.
func measurementSchema(cfg *config.Config) metrics.Schema {
	return metrics.Schema{
		Version: metrics.SchemaV1.Version,
		Columns: metrics.SchemaV1.Columns,
		Quality: cfg.MetricColumns(),
	}
}

func runCompare(cmd *cobra.Command, cfg *config.Config, opts *compareOptions) error {
	applyCompareFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.fromDB && cfg.DatabasePath == "" {
		return errors.New("--from-db needs a database path (--db or database_path)")
	}

	table, err := loadMeasurements(cfg, opts)
	if err != nil {
		return err
	}

	baseline := compare.Identity{
		Encoder: cfg.Baseline.Encoder,
		Commit:  cfg.Baseline.Commit,
		Preset:  cfg.Baseline.Preset,
	}
	agg := &compare.Aggregator{
		Baseline: baseline,
		Metrics:  cfg.MetricColumns(),
		Workers:  cfg.Workers,
	}
	result, err := agg.Aggregate(table)
	if err != nil {
		return err
	}
	for _, s := range result.Skipped {
		if s.Target == (compare.Identity{}) {
			logger.Warn("Skipped video", "video", s.Video, "error", s.Err)
		} else {
			logger.Warn("Skipped configuration", "video", s.Video, "target", s.Target.String(), "error", s.Err)
		}
	}

	if err := writeComparisons(cmd, opts.output, result.Rows, cfg); err != nil {
		return err
	}

	if cfg.PlotDir != "" {
		writePlots(cfg, table, baseline)
	}

	if cfg.DatabasePath != "" {
		if err := storeComparisons(cfg.DatabasePath, result.Rows, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func loadMeasurements(cfg *config.Config, opts *compareOptions) (*metrics.Table, error) {
	schema := measurementSchema(cfg)

	if opts.fromDB {
		st, err := store.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer st.Close()

		table, err := st.LoadMeasurements(schema)
		if err != nil {
			return nil, fmt.Errorf("load measurements: %w", err)
		}
		logger.Info("Loaded measurements", "database", st.Path(), "rows", table.Len())
		return table, nil
	}

	return readMeasurementFile(opts.input, schema)
}

// readMeasurementFile loads a measurement CSV, logging and dropping rows
// that fail to parse.
func readMeasurementFile(path string, schema metrics.Schema) (*metrics.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, rowErrs, err := metrics.ReadCSV(f, path, schema)
	if err != nil {
		return nil, err
	}
	for _, re := range rowErrs {
		logger.Warn("Skipped measurement row", "source", re.Source, "line", re.Line, "error", re.Err)
	}
	logger.Info("Loaded measurements", "source", path, "rows", table.Len(), "rejected", len(rowErrs))
	return table, nil
}

func writeComparisons(cmd *cobra.Command, output string, rows []compare.Row, cfg *config.Config) error {
	err := writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
		return report.WriteCSV(w, rows, cfg.Metrics, cfg.IncludeBDSNR)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	logger.Info("Wrote comparisons", "output", output, "rows", len(rows))
	return nil
}

// writePlots renders every video's curves; a failed plot is logged and
// does not stop the others.
func writePlots(cfg *config.Config, table *metrics.Table, baseline compare.Identity) {
	for _, video := range table.Videos() {
		files, err := report.PlotVideo(cfg.PlotDir, table, baseline, video, cfg.MetricColumns())
		if err != nil {
			logger.Warn("Plot failed", "video", video, "error", err)
			continue
		}
		logger.Debug("Wrote plots", "video", video, "files", len(files))
	}
}

// storeComparisons upserts rows as one batch under a fresh run id.
func storeComparisons(dbPath string, rows []compare.Row, at time.Time) error {
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := uuid.New()
	n, err := st.UpsertComparisons(rows, runID, at)
	if err != nil {
		return fmt.Errorf("store comparisons: %w", err)
	}
	logger.Info("Stored comparisons", "database", st.Path(), "rows", n, "run_id", runID.String())
	return nil
}
