package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlsn/rdcompare/internal/bjontegaard"
	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/config"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

var twoMetrics = []config.Metric{
	{Column: "vmaf", Label: "VMAF Mean"},
	{Column: "vmaf_5th", Label: "VMAF 5th"},
}

func sampleRows() []compare.Row {
	base := compare.Identity{Encoder: "svt-av1", Commit: "m100", Preset: "8"}
	return []compare.Row{
		{
			Baseline:          base,
			Target:            compare.Identity{Encoder: "svt-av1", Commit: "m101", Preset: "8"},
			Video:             "crowd_run",
			EncodeTimeDiffPct: 10,
			DecodeTimeDiffPct: -2.5,
			Deltas: []compare.MetricDelta{
				{Metric: "vmaf", BDRate: -10, BDSNR: 1.234},
				{Metric: "vmaf_5th", BDRate: -7.125, BDSNR: 0.9},
			},
		},
		{
			Baseline: base,
			Target:   compare.Identity{Encoder: "libaom", Commit: "a1", Preset: "cpu-6"},
			Video:    "park, joy",
			Deltas: []compare.MetricDelta{
				{Metric: "vmaf", BDRate: 3.5},
				{Metric: "vmaf_5th", BDRate: 4},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows(), twoMetrics, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Baseline Encoder,Baseline Commit,Baseline Preset,Target Encoder,Target Commit,Target Preset,Video,Encode Time Diff Pct,Decode Time Diff Pct,VMAF Mean,VMAF 5th", lines[0])
	assert.Equal(t, "svt-av1,m100,8,svt-av1,m101,8,crowd_run,10,-2.5,-10,-7.125", lines[1])
	assert.Equal(t, `svt-av1,m100,8,libaom,a1,cpu-6,"park, joy",0,0,3.5,4`, lines[2])
}

func TestWriteCSV_MissingDelta(t *testing.T) {
	rows := sampleRows()[:1]
	rows[0].Deltas = rows[0].Deltas[:1]

	var buf bytes.Buffer
	err := WriteCSV(&buf, rows, twoMetrics, false)
	assert.ErrorContains(t, err, "vmaf_5th")
}

func TestCSVRoundTrip(t *testing.T) {
	for _, withBDSNR := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, sampleRows(), twoMetrics, withBDSNR))

		got, err := ReadCSV(&buf, twoMetrics)
		require.NoError(t, err)

		want := sampleRows()
		if !withBDSNR {
			for i := range want {
				for j := range want[i].Deltas {
					want[i].Deltas[j].BDSNR = 0
				}
			}
		}
		assert.Equal(t, want, got, "withBDSNR=%v", withBDSNR)
	}
}

func TestReadCSV_MissingMetricColumn(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows(), twoMetrics[:1], false))

	_, err := ReadCSV(&buf, twoMetrics)
	assert.ErrorContains(t, err, "VMAF 5th")
}

func TestReadCSV_BadNumber(t *testing.T) {
	input := strings.Join(Header(twoMetrics[:1], false), ",") + "\n" +
		"a,b,c,d,e,f,v,fast,0,1\n"

	_, err := ReadCSV(strings.NewReader(input), twoMetrics[:1])
	assert.ErrorContains(t, err, "Encode Time Diff Pct")
}

func TestPlotCurves(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	series := []Series{
		{Name: "baseline", Points: []bjontegaard.Point{{Rate: 1000, Quality: 80}, {Rate: 2000, Quality: 85}, {Rate: 4000, Quality: 90}}},
		{Name: "target", Points: []bjontegaard.Point{{Rate: 900, Quality: 80}, {Rate: 1800, Quality: 85}, {Rate: 0, Quality: 1}}},
	}

	file, err := PlotCurves(dir, "crowd run/1080p", "vmaf", series)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crowd_run_1080p_vmaf.png"), file)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPlotCurves_NothingToDraw(t *testing.T) {
	_, err := PlotCurves(t.TempDir(), "v", "vmaf", []Series{{Name: "empty"}})
	assert.Error(t, err)
}

func TestPlotVideo(t *testing.T) {
	base := compare.Identity{Encoder: "svt-av1", Commit: "m100", Preset: "8"}
	other := compare.Identity{Encoder: "svt-av1", Commit: "m101", Preset: "8"}
	schema := metrics.Schema{Version: 1, Columns: metrics.SchemaV1.Columns, Quality: []string{"vmaf"}}

	table := metrics.NewTable(schema)
	for i, rate := range []float64{1000, 2000, 4000, 8000} {
		q := 80 + float64(i)*4
		for _, id := range []compare.Identity{base, other} {
			table.Append(metrics.Row{
				Encoder: id.Encoder, Commit: id.Commit, Preset: id.Preset, Video: "crowd_run",
				Bitrate: rate, Quality: map[string]float64{"vmaf": q},
			})
		}
	}

	dir := t.TempDir()
	files, err := PlotVideo(dir, table, base, "crowd_run", []string{"vmaf"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.FileExists(t, files[0])

	_, err = PlotVideo(dir, table, base, "missing", []string{"vmaf"})
	assert.ErrorIs(t, err, compare.ErrBaselineNotFound)
}
