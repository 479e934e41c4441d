package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/gwlsn/rdcompare/internal/bjontegaard"
	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

// Series is one labelled rate-distortion curve on a plot.
type Series struct {
	Name   string
	Points []bjontegaard.Point
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PlotFileName returns the PNG name used for a video and metric.
func PlotFileName(video, metric string) string {
	return unsafeFileChars.ReplaceAllString(video, "_") + "_" + unsafeFileChars.ReplaceAllString(metric, "_") + ".png"
}

// PlotCurves renders series as quality over log bitrate and writes a PNG
// into dir. Points with non-positive rate are dropped since they cannot sit
// on a log axis. Returns the written path.
func PlotCurves(dir, video, metric string, series []Series) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create plot dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s", video, metric)
	p.X.Label.Text = "Bitrate"
	p.Y.Label.Text = metric
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Legend.Top = false
	p.Legend.Left = false
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, s := range series {
		pts := make(plotter.XYs, 0, len(s.Points))
		for _, pt := range s.Points {
			if pt.Rate > 0 {
				pts = append(pts, plotter.XY{X: pt.Rate, Y: pt.Quality})
			}
		}
		if len(pts) == 0 {
			continue
		}

		line, scatter, err := plotter.NewLinePoints(pts)
		if err != nil {
			return "", fmt.Errorf("series %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		scatter.Color = plotutil.Color(i)
		scatter.Shape = plotutil.Shape(i)

		p.Add(line, scatter)
		p.Legend.Add(s.Name, line, scatter)
		drawn++
	}
	if drawn == 0 {
		return "", fmt.Errorf("no plottable points for %s/%s", video, metric)
	}

	file := filepath.Join(dir, PlotFileName(video, metric))
	if err := p.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return file, nil
}

// PlotVideo writes one plot per metric for video, with the baseline curve
// first and every other configuration after it. A video without baseline
// rows returns compare.ErrBaselineNotFound.
func PlotVideo(dir string, table *metrics.Table, baseline compare.Identity, video string, metricCols []string) ([]string, error) {
	rows := table.ForVideo(video)
	base, err := compare.ResolveBaseline(rows, baseline, video, metricCols)
	if err != nil {
		return nil, err
	}
	groups := compare.Partition(rows, baseline)

	var files []string
	for _, m := range metricCols {
		series := []Series{{Name: "baseline " + baseline.String(), Points: base.Curves[m].Points()}}
		for _, g := range groups {
			c := compare.BuildCurves(g.Identity.String(), g.Rows, []string{m})[m]
			series = append(series, Series{Name: g.Identity.String(), Points: c.Points()})
		}

		file, err := PlotCurves(dir, video, m, series)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}
