// Package report serializes comparison rows and renders rate-distortion
// plots.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/config"
)

// fixedHeader precedes the per-metric columns.
var fixedHeader = []string{
	"Baseline Encoder",
	"Baseline Commit",
	"Baseline Preset",
	"Target Encoder",
	"Target Commit",
	"Target Preset",
	"Video",
	"Encode Time Diff Pct",
	"Decode Time Diff Pct",
}

const bdsnrSuffix = " BD-SNR"

// Header returns the output header: fixed columns, one BD-rate column per
// metric label, then one BD-SNR column per metric when withBDSNR is set.
func Header(metrics []config.Metric, withBDSNR bool) []string {
	h := append([]string(nil), fixedHeader...)
	for _, m := range metrics {
		h = append(h, m.Label)
	}
	if withBDSNR {
		for _, m := range metrics {
			h = append(h, m.Label+bdsnrSuffix)
		}
	}
	return h
}

// WriteCSV writes rows in the order given, header first.
func WriteCSV(w io.Writer, rows []compare.Row, metrics []config.Metric, withBDSNR bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(metrics, withBDSNR)); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Baseline.Encoder, r.Baseline.Commit, r.Baseline.Preset,
			r.Target.Encoder, r.Target.Commit, r.Target.Preset,
			r.Video,
			formatFloat(r.EncodeTimeDiffPct),
			formatFloat(r.DecodeTimeDiffPct),
		}
		for _, m := range metrics {
			d, ok := r.Delta(m.Column)
			if !ok {
				return fmt.Errorf("row %s on %s has no %q delta", r.Target, r.Video, m.Column)
			}
			record = append(record, formatFloat(d.BDRate))
		}
		if withBDSNR {
			for _, m := range metrics {
				d, _ := r.Delta(m.Column)
				record = append(record, formatFloat(d.BDSNR))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a file written by WriteCSV. Metric columns are matched by
// label; a metric whose label is absent is an error, a missing BD-SNR
// column leaves BDSNR at zero.
func ReadCSV(r io.Reader, metrics []config.Metric) ([]compare.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, h := range fixedHeader {
		if _, ok := pos[h]; !ok {
			return nil, fmt.Errorf("missing column %q", h)
		}
	}
	for _, m := range metrics {
		if _, ok := pos[m.Label]; !ok {
			return nil, fmt.Errorf("missing column %q", m.Label)
		}
	}

	var rows []compare.Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		get := func(col string) string { return record[pos[col]] }
		num := func(col string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(get(col)), 64)
			if err != nil {
				return 0, fmt.Errorf("line %d column %q: %w", line, col, err)
			}
			return v, nil
		}

		row := compare.Row{
			Baseline: compare.Identity{Encoder: get("Baseline Encoder"), Commit: get("Baseline Commit"), Preset: get("Baseline Preset")},
			Target:   compare.Identity{Encoder: get("Target Encoder"), Commit: get("Target Commit"), Preset: get("Target Preset")},
			Video:    get("Video"),
		}
		if row.EncodeTimeDiffPct, err = num("Encode Time Diff Pct"); err != nil {
			return nil, err
		}
		if row.DecodeTimeDiffPct, err = num("Decode Time Diff Pct"); err != nil {
			return nil, err
		}
		for _, m := range metrics {
			d := compare.MetricDelta{Metric: m.Column}
			if d.BDRate, err = num(m.Label); err != nil {
				return nil, err
			}
			if _, ok := pos[m.Label+bdsnrSuffix]; ok {
				if d.BDSNR, err = num(m.Label + bdsnrSuffix); err != nil {
					return nil, err
				}
			}
			row.Deltas = append(row.Deltas, d)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
