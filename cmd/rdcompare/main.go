package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	rdcompare "github.com/gwlsn/rdcompare"
	"github.com/gwlsn/rdcompare/internal/config"
	"github.com/gwlsn/rdcompare/internal/logger"
)

const defaultConfigPath = "rdcompare.yaml"

// app carries state shared by every subcommand after the root pre-run.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func main() {
	// Cancel in-flight ffmpeg runs on Ctrl-C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if logger.Log == nil {
			logger.Init("info")
		}
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "rdcompare",
		Short: "Compare encoder builds by Bjontegaard rate and quality deltas",
		Long: `rdcompare reads per-encode measurements, fits rate-distortion curves
per video and reports BD-rate (and optionally BD-SNR) for every encoder
configuration against a chosen baseline.`,
		Version:           rdcompare.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: $RDCOMPARE_CONFIG or ./"+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newCompareCmd(a),
		newUploadCmd(a),
		newIngestCmd(a),
		newHistoryCmd(a),
		newParseVMAFCmd(a),
		newScoreCmd(a),
		newConfigCmd(a),
	)
	return root
}

// resolveConfigPath picks the config file: flag, then environment, then the
// working-directory default.
func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	if env := os.Getenv("RDCOMPARE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	path := a.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	logger.InitWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	logger.Debug("Configuration loaded", "path", path)

	a.cfg = cfg
	return nil
}
