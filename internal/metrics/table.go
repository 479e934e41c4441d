// Package metrics holds the flat per-encode measurement table and its
// delimited-text representation.
package metrics

// Row is one measurement: a single encode of one video at one rate point.
// Rows are treated as immutable once loaded.
type Row struct {
	Encoder    string
	Commit     string
	Preset     string
	Video      string
	Size       string
	Type       string
	Bitrate    float64
	FirstTime  float64 // first-pass encode seconds
	SecondTime float64 // second-pass encode seconds
	DecodeTime float64
	Quality    map[string]float64 // keyed by quality column name
}

// EncodeTime is the total encode time across both passes.
func (r Row) EncodeTime() float64 {
	return r.FirstTime + r.SecondTime
}

func (r Row) column(col string) string {
	switch col {
	case ColEncoder:
		return r.Encoder
	case ColCommit:
		return r.Commit
	case ColPreset:
		return r.Preset
	case ColVideo:
		return r.Video
	case ColSize:
		return r.Size
	case ColType:
		return r.Type
	case ColBitrate:
		return formatFloat(r.Bitrate)
	case ColFirstTime:
		return formatFloat(r.FirstTime)
	case ColSecondTime:
		return formatFloat(r.SecondTime)
	case ColDecodeTime:
		return formatFloat(r.DecodeTime)
	}
	return ""
}

// Table is an in-memory snapshot of measurement rows with a per-video index.
// It is not safe for concurrent mutation; readers may share it once loading
// is done.
type Table struct {
	schema  Schema
	rows    []Row
	videos  []string
	byVideo map[string][]int
}

// NewTable creates a table over schema and appends rows in order.
func NewTable(schema Schema, rows ...Row) *Table {
	t := &Table{schema: schema, byVideo: make(map[string][]int)}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Append adds a row to the end of the table.
func (t *Table) Append(r Row) {
	if _, ok := t.byVideo[r.Video]; !ok {
		t.videos = append(t.videos, r.Video)
	}
	t.byVideo[r.Video] = append(t.byVideo[r.Video], len(t.rows))
	t.rows = append(t.rows, r)
}

// Schema returns the schema the table was loaded with.
func (t *Table) Schema() Schema {
	return t.schema
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns all rows in load order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Videos returns distinct video names in order of first appearance.
func (t *Table) Videos() []string {
	out := make([]string, len(t.videos))
	copy(out, t.videos)
	return out
}

// ForVideo returns the rows for one video in load order.
func (t *Table) ForVideo(video string) []Row {
	idx := t.byVideo[video]
	out := make([]Row, len(idx))
	for i, j := range idx {
		out[i] = t.rows[j]
	}
	return out
}
