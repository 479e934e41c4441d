package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/config"
	"github.com/gwlsn/rdcompare/internal/logger"
	"github.com/gwlsn/rdcompare/internal/report"
	"github.com/gwlsn/rdcompare/internal/store"
)

// databasePath returns the --db flag when set, otherwise the configured
// path. Either must be present.
func databasePath(cmd *cobra.Command, cfg *config.Config, flagValue string) (string, error) {
	if cmd.Flags().Changed("db") {
		cfg.DatabasePath = flagValue
	}
	if cfg.DatabasePath == "" {
		return "", errors.New("no database path (--db or database_path)")
	}
	return cfg.DatabasePath, nil
}

func newUploadCmd(a *app) *cobra.Command {
	var input, db string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upsert a comparison CSV into the database",
		Long: `upload reads a CSV written by compare and upserts its rows into the
database. The file's modification time is stored as the batch timestamp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := databasePath(cmd, a.cfg, db)
			if err != nil {
				return err
			}
			return runUpload(input, dbPath, a.cfg.Metrics)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "bd_rates.csv", "Comparison CSV to upload")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	return cmd
}

func runUpload(input, dbPath string, metrics []config.Metric) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	rows, err := report.ReadCSV(f, metrics)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := uuid.New()
	n, err := st.UpsertComparisons(rows, runID, info.ModTime())
	if err != nil {
		return err
	}
	logger.Info("Uploaded comparisons", "source", input, "database", st.Path(), "rows", n, "run_id", runID.String())
	return nil
}

func newIngestCmd(a *app) *cobra.Command {
	var input, db string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upsert a measurement CSV into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := databasePath(cmd, a.cfg, db)
			if err != nil {
				return err
			}
			return runIngest(input, dbPath, a.cfg)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Measurement CSV to ingest")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runIngest(input, dbPath string, cfg *config.Config) error {
	table, err := readMeasurementFile(input, measurementSchema(cfg))
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.UpsertMeasurements(table)
	if err != nil {
		return err
	}
	logger.Info("Ingested measurements", "source", input, "database", st.Path(), "rows", n)
	return nil
}

func newHistoryCmd(a *app) *cobra.Command {
	var db, video, commit, run string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored comparisons as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := databasePath(cmd, a.cfg, db)
			if err != nil {
				return err
			}

			filter := store.ComparisonFilter{Video: video, TargetCommit: commit}
			if run != "" {
				id, err := uuid.Parse(run)
				if err != nil {
					return fmt.Errorf("--run: %w", err)
				}
				filter.RunID = id
			}

			st, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			stored, err := st.Comparisons(filter)
			if err != nil {
				return err
			}
			rows := make([]compare.Row, len(stored))
			for i, c := range stored {
				rows[i] = c.Row
			}
			return report.WriteCSV(cmd.OutOrStdout(), rows, a.cfg.Metrics, a.cfg.IncludeBDSNR)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&video, "video", "", "Only rows for this video")
	cmd.Flags().StringVar(&commit, "commit", "", "Only rows for this target commit")
	cmd.Flags().StringVar(&run, "run", "", "Only rows from this upload run id")
	return cmd
}
