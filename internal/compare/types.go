// Package compare turns a measurement table into baseline-relative
// comparison rows.
package compare

import (
	"fmt"

	"github.com/gwlsn/rdcompare/internal/metrics"
)

// Identity is an encoder configuration: encoder name, build commit and
// preset.
type Identity struct {
	Encoder string
	Commit  string
	Preset  string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s@%s/%s", id.Encoder, id.Commit, id.Preset)
}

// IdentityOf returns the configuration a measurement row belongs to.
func IdentityOf(r metrics.Row) Identity {
	return Identity{Encoder: r.Encoder, Commit: r.Commit, Preset: r.Preset}
}

// MetricDelta holds the Bjontegaard deltas for one quality metric.
type MetricDelta struct {
	Metric string
	BDRate float64 // percent, negative = target saves bitrate
	BDSNR  float64 // metric units, positive = target scores higher
}

// Row compares one target configuration against the baseline on one video.
type Row struct {
	Baseline          Identity
	Target            Identity
	Video             string
	EncodeTimeDiffPct float64
	DecodeTimeDiffPct float64
	Deltas            []MetricDelta // in tracked-metric order
}

// Delta returns the deltas for metric.
func (r Row) Delta(metric string) (MetricDelta, bool) {
	for _, d := range r.Deltas {
		if d.Metric == metric {
			return d, true
		}
	}
	return MetricDelta{}, false
}

// Skip records a video or target group that produced no row.
// Target is zero when the whole video was skipped.
type Skip struct {
	Video  string
	Target Identity
	Err    error
}

// Result is the output of one aggregation pass.
type Result struct {
	Rows    []Row
	Skipped []Skip
}
