package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gwlsn/rdcompare/internal/logger"
	"github.com/gwlsn/rdcompare/internal/vmaf"
)

func formatScore(s vmaf.Score) string {
	return strconv.FormatFloat(s.Mean, 'f', -1, 64) + "," + strconv.FormatFloat(s.P5, 'f', -1, 64)
}

func newParseVMAFCmd(a *app) *cobra.Command {
	var inputs []string
	var output, metric string

	cmd := &cobra.Command{
		Use:   "parse-vmaf",
		Short: "Extract mean and 5th-percentile scores from libvmaf JSON logs",
		Long: `parse-vmaf writes "mean,p5" for a single report, or one
"source,mean,p5" line per report when given several. A report that fails
to parse is logged and skipped; the command then exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return runParseVMAF(w, inputs, metric)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "libvmaf JSON report (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&metric, "metric", vmaf.DefaultMetric, "Per-frame metric to read")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runParseVMAF(w io.Writer, inputs []string, metric string) error {
	bw := bufio.NewWriter(w)

	failed := 0
	for _, in := range inputs {
		score, err := vmaf.ParseFile(in, metric)
		if err != nil {
			logger.Error("Failed to parse report", "source", in, "error", err)
			failed++
			continue
		}
		if len(inputs) == 1 {
			fmt.Fprintln(bw, formatScore(score))
		} else {
			fmt.Fprintf(bw, "%s,%s\n", in, formatScore(score))
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed to parse", failed, len(inputs))
	}
	return nil
}

func newScoreCmd(a *app) *cobra.Command {
	var reference, distorted, ffmpegPath, model string
	var threads int

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run libvmaf on a distorted encode and print mean,p5",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("ffmpeg") {
				cfg.FFmpegPath = ffmpegPath
			}
			if cmd.Flags().Changed("model") {
				cfg.VMAFModel = model
			}

			ctx := cmd.Context()
			if !vmaf.Available(ctx, cfg.FFmpegPath) {
				return fmt.Errorf("%s has no libvmaf filter", cfg.FFmpegPath)
			}

			score, err := vmaf.Measure(ctx, cfg.FFmpegPath, reference, distorted, vmaf.ScoreOptions{
				Model:   cfg.VMAFModel,
				Threads: threads,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), formatScore(score))
			return err
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "Reference (source) video")
	cmd.Flags().StringVar(&distorted, "distorted", "", "Distorted (encoded) video")
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "", "ffmpeg binary (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "libvmaf model version (default from config)")
	cmd.Flags().IntVar(&threads, "threads", 0, "libvmaf threads (0 = all CPUs)")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("distorted")
	return cmd
}
