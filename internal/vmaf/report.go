// Package vmaf reads libvmaf JSON reports and runs libvmaf through ffmpeg.
package vmaf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// ErrMalformedReport is returned when a report lacks the pooled mean or
// per-frame scores for the requested metric.
var ErrMalformedReport = errors.New("malformed VMAF report")

// DefaultMetric is the libvmaf feature name of the VMAF score itself.
const DefaultMetric = "vmaf"

// Score is the pooled mean and 5th-percentile frame score of one report.
type Score struct {
	Mean float64
	P5   float64
}

// jsonReport is the subset of libvmaf's log_fmt=json output we read.
type jsonReport struct {
	Frames []struct {
		FrameNum int                `json:"frameNum"`
		Metrics  map[string]float64 `json:"metrics"`
	} `json:"frames"`
	PooledMetrics map[string]struct {
		Mean *float64 `json:"mean"`
	} `json:"pooled_metrics"`
}

// ParseReport reads a libvmaf JSON report and returns the pooled mean and
// the 5th percentile of per-frame scores for metric.
func ParseReport(r io.Reader, metric string) (Score, error) {
	if metric == "" {
		metric = DefaultMetric
	}

	var rep jsonReport
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	pooled, ok := rep.PooledMetrics[metric]
	if !ok || pooled.Mean == nil {
		return Score{}, fmt.Errorf("%w: no pooled mean for %q", ErrMalformedReport, metric)
	}
	if len(rep.Frames) == 0 {
		return Score{}, fmt.Errorf("%w: no frames", ErrMalformedReport)
	}

	scores := make([]float64, len(rep.Frames))
	for i, f := range rep.Frames {
		v, ok := f.Metrics[metric]
		if !ok {
			return Score{}, fmt.Errorf("%w: frame %d has no %q score", ErrMalformedReport, f.FrameNum, metric)
		}
		scores[i] = v
	}

	return Score{Mean: *pooled.Mean, P5: Percentile(scores, 5)}, nil
}

// ParseFile is ParseReport on a file; errors carry the path.
func ParseFile(path, metric string) (Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return Score{}, err
	}
	defer f.Close()

	s, err := ParseReport(f, metric)
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Percentile returns the p-th percentile (0-100) of values, interpolating
// linearly between the two closest ranks of the sorted data: rank
// p/100*(n-1). values is not modified. An empty slice yields NaN.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
