package compare

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/gwlsn/rdcompare/internal/bjontegaard"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

// ErrBaselineNotFound means a video has no rows for the baseline
// configuration.
var ErrBaselineNotFound = errors.New("baseline not found")

// Baseline is the reference side of every comparison on one video.
type Baseline struct {
	Identity   Identity
	Video      string
	Rows       []metrics.Row
	EncodeTime float64 // mean of first+second pass time
	DecodeTime float64 // mean decode time
	Curves     map[string]bjontegaard.Curve
}

// ResolveBaseline selects the rows of video that belong to id and builds
// one curve per metric from them.
func ResolveBaseline(rows []metrics.Row, id Identity, video string, metricCols []string) (*Baseline, error) {
	var selected []metrics.Row
	for _, r := range rows {
		if r.Video == video && IdentityOf(r) == id {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrBaselineNotFound, id, video)
	}

	return &Baseline{
		Identity:   id,
		Video:      video,
		Rows:       selected,
		EncodeTime: meanEncodeTime(selected),
		DecodeTime: meanDecodeTime(selected),
		Curves:     BuildCurves(id.String()+"/"+video, selected, metricCols),
	}, nil
}

// BuildCurves pairs each row's bitrate with its score for every metric.
// A row without the metric contributes a zero score, which the fitter
// rejects as out of domain.
func BuildCurves(name string, rows []metrics.Row, metricCols []string) map[string]bjontegaard.Curve {
	curves := make(map[string]bjontegaard.Curve, len(metricCols))
	for _, m := range metricCols {
		c := bjontegaard.Curve{Name: name + "/" + m}
		for _, r := range rows {
			c.Add(bjontegaard.Point{Rate: r.Bitrate, Quality: r.Quality[m]})
		}
		curves[m] = c
	}
	return curves
}

func meanEncodeTime(rows []metrics.Row) float64 {
	x := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.EncodeTime()
	}
	return stat.Mean(x, nil)
}

func meanDecodeTime(rows []metrics.Row) float64 {
	x := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.DecodeTime
	}
	return stat.Mean(x, nil)
}
