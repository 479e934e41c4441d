package compare

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/gwlsn/rdcompare/internal/bjontegaard"
	"github.com/gwlsn/rdcompare/internal/logger"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

const (
	timePlaces = 2
	bdPlaces   = 3
)

// Aggregator compares every configuration in a table against one baseline.
type Aggregator struct {
	Baseline Identity
	Metrics  []string // quality columns, in output order
	Workers  int      // videos processed concurrently; <1 means 1
}

// Group is the rows of one target configuration on one video.
type Group struct {
	Identity Identity
	Rows     []metrics.Row
}

// Partition splits rows by configuration in order of first appearance,
// leaving out rows whose configuration equals exclude.
func Partition(rows []metrics.Row, exclude Identity) []Group {
	var groups []Group
	index := make(map[Identity]int)
	for _, r := range rows {
		id := IdentityOf(r)
		if id == exclude {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{Identity: id})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}

// Aggregate runs the comparison over every video in the table. Videos with
// no baseline rows and groups whose curves cannot be fitted are reported in
// Result.Skipped; they never fail the pass. Rows are ordered by target
// commit, ties keeping video order then first-appearance order.
func (a *Aggregator) Aggregate(table *metrics.Table) (*Result, error) {
	if len(a.Metrics) == 0 {
		return nil, errors.New("no quality metrics to compare")
	}
	for _, m := range a.Metrics {
		if !table.Schema().HasMetric(m) {
			return nil, fmt.Errorf("%w: metric %q not in schema v%d", metrics.ErrSchemaMismatch, m, table.Schema().Version)
		}
	}

	videos := table.Videos()
	perVideo := make([]Result, len(videos))

	var g errgroup.Group
	g.SetLimit(max(a.Workers, 1))
	for i, video := range videos {
		g.Go(func() error {
			perVideo[i] = a.compareVideo(video, table.ForVideo(video))
			return nil
		})
	}
	// Per-video failures land in Skipped, so workers only return nil.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, r := range perVideo {
		result.Rows = append(result.Rows, r.Rows...)
		result.Skipped = append(result.Skipped, r.Skipped...)
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		return result.Rows[i].Target.Commit < result.Rows[j].Target.Commit
	})

	logger.Info("Comparison complete",
		"videos", len(videos),
		"rows", len(result.Rows),
		"skipped", len(result.Skipped))
	return result, nil
}

func (a *Aggregator) compareVideo(video string, rows []metrics.Row) Result {
	var out Result

	base, err := ResolveBaseline(rows, a.Baseline, video, a.Metrics)
	if err != nil {
		logger.Warn("Skipping video", "video", video, "error", err)
		out.Skipped = append(out.Skipped, Skip{Video: video, Err: err})
		return out
	}

	for _, grp := range Partition(rows, a.Baseline) {
		row, err := a.compareGroup(base, grp)
		if err != nil {
			logger.Warn("Skipping comparison", "video", video, "target", grp.Identity.String(), "error", err)
			out.Skipped = append(out.Skipped, Skip{Video: video, Target: grp.Identity, Err: err})
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	logger.Debug("Video compared", "video", video, "baseline_points", len(base.Rows), "rows", len(out.Rows))
	return out
}

func (a *Aggregator) compareGroup(base *Baseline, grp Group) (Row, error) {
	curves := BuildCurves(grp.Identity.String()+"/"+base.Video, grp.Rows, a.Metrics)

	deltas := make([]MetricDelta, 0, len(a.Metrics))
	for _, m := range a.Metrics {
		rate, err := bjontegaard.BDRate(base.Curves[m], curves[m])
		if err != nil {
			return Row{}, fmt.Errorf("bd-rate %s: %w", m, err)
		}
		snr, err := bjontegaard.BDSNR(base.Curves[m], curves[m])
		if err != nil {
			return Row{}, fmt.Errorf("bd-snr %s: %w", m, err)
		}
		deltas = append(deltas, MetricDelta{
			Metric: m,
			BDRate: roundTo(rate, bdPlaces),
			BDSNR:  roundTo(snr, bdPlaces),
		})
	}

	return Row{
		Baseline:          base.Identity,
		Target:            grp.Identity,
		Video:             base.Video,
		EncodeTimeDiffPct: timeDiffPct(meanEncodeTime(grp.Rows), base.EncodeTime),
		DecodeTimeDiffPct: timeDiffPct(meanDecodeTime(grp.Rows), base.DecodeTime),
		Deltas:            deltas,
	}, nil
}

// timeDiffPct is the relative change from base to target in percent.
// A zero base yields 0.
func timeDiffPct(target, base float64) float64 {
	if base == 0 {
		return 0
	}
	return roundTo((target-base)/base*100, timePlaces)
}

// roundTo rounds v to the given number of decimal places using the exact
// binary value of v, so 2.675 rounds to 2.67.
func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil || r == 0 {
		// Also folds -0 into 0.
		return 0
	}
	return r
}
