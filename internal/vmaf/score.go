package vmaf

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gwlsn/rdcompare/internal/logger"
)

// ScoreOptions controls a libvmaf run.
type ScoreOptions struct {
	Model   string // libvmaf model version, e.g. vmaf_v0.6.1
	Threads int    // 0 means runtime.NumCPU()
}

// lastLines returns the last n non-empty lines from output
func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// buildScoringFilter returns the filtergraph comparing input 0 (distorted)
// against input 1 (reference), both converted to yuv420p, with the JSON log
// written to logPath.
func buildScoringFilter(model string, threads int, logPath string) string {
	return fmt.Sprintf(
		"[0:v]format=yuv420p[dist];[1:v]format=yuv420p[ref];"+
			"[dist][ref]libvmaf=model=version=%s:n_threads=%d:log_fmt=json:log_path=%s",
		model, threads, escapeFilterValue(logPath))
}

// escapeFilterValue escapes characters that end an option value inside a
// filtergraph.
func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `;`, `\;`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

// Measure runs libvmaf over distorted against reference and returns the mean
// and 5th-percentile VMAF.
func Measure(ctx context.Context, ffmpegPath, referencePath, distortedPath string, opts ScoreOptions) (Score, error) {
	if opts.Model == "" {
		opts.Model = "vmaf_v0.6.1"
	}
	if opts.Threads <= 0 {
		opts.Threads = runtime.NumCPU()
	}

	dir, err := os.MkdirTemp("", "rdcompare-vmaf-")
	if err != nil {
		return Score{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	logPath := filepath.Join(dir, "vmaf.json")

	args := []string{
		"-hide_banner", "-nostats",
		"-i", distortedPath, // Input 0: distorted/encoded
		"-i", referencePath, // Input 1: reference/original
		"-lavfi", buildScoringFilter(opts.Model, opts.Threads, logPath),
		"-f", "null", "-",
	}

	logger.Debug("Running libvmaf", "reference", referencePath, "distorted", distortedPath, "model", opts.Model)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Score{}, fmt.Errorf("VMAF scoring failed: %w (output: %s)", err, lastLines(string(output), 5))
	}

	return ParseFile(logPath, DefaultMetric)
}

// Available reports whether ffmpeg at ffmpegPath was built with libvmaf.
func Available(ctx context.Context, ffmpegPath string) bool {
	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-filters").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), "libvmaf")
}
