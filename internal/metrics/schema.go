package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSchemaMismatch is returned when a header or record does not fit the
// schema it is bound against.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Fixed column names shared by every schema version.
const (
	ColEncoder    = "encoder"
	ColCommit     = "commit"
	ColPreset     = "preset"
	ColVideo      = "video"
	ColSize       = "size"
	ColType       = "type"
	ColBitrate    = "bitrate"
	ColFirstTime  = "first_time"
	ColSecondTime = "second_time"
	ColDecodeTime = "decode_time"
)

// Schema describes the column layout of a measurement table.
type Schema struct {
	Version int
	Columns []string // fixed columns in write order
	Quality []string // quality metric columns, written after Columns
}

// SchemaV1 is the layout produced by the encode harness: ten fixed columns
// followed by mean and 5th-percentile VMAF and SSIMULACRA2 scores.
var SchemaV1 = Schema{
	Version: 1,
	Columns: []string{
		ColEncoder, ColCommit, ColPreset, ColVideo, ColSize, ColType,
		ColBitrate, ColFirstTime, ColSecondTime, ColDecodeTime,
	},
	Quality: []string{"vmaf", "ssimcra2", "vmaf_5th", "ssimcra2_5th"},
}

// Header returns the full column list in write order.
func (s Schema) Header() []string {
	out := make([]string, 0, len(s.Columns)+len(s.Quality))
	out = append(out, s.Columns...)
	return append(out, s.Quality...)
}

// HasMetric reports whether name is one of the schema's quality columns.
func (s Schema) HasMetric(name string) bool {
	for _, q := range s.Quality {
		if q == name {
			return true
		}
	}
	return false
}

// Binding maps schema columns to positions in a concrete header.
type Binding struct {
	schema Schema
	index  map[string]int
}

// Bind resolves every schema column against header. Names are compared
// case-insensitively with surrounding space trimmed and inner spaces read
// as underscores. Extra header columns are ignored.
func (s Schema) Bind(header []string) (*Binding, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeColumn(h)
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, h)
		}
		pos[name] = i
	}

	b := &Binding{schema: s, index: make(map[string]int, len(s.Columns)+len(s.Quality))}
	for _, col := range s.Header() {
		i, ok := pos[col]
		if !ok {
			return nil, fmt.Errorf("%w: schema v%d column %q not in header", ErrSchemaMismatch, s.Version, col)
		}
		b.index[col] = i
	}
	return b, nil
}

func normalizeColumn(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// Row converts one record into a Row.
func (b *Binding) Row(record []string) (Row, error) {
	field := func(col string) (string, error) {
		i := b.index[col]
		if i >= len(record) {
			return "", fmt.Errorf("%w: record has %d fields, column %q is at %d", ErrSchemaMismatch, len(record), col, i)
		}
		return strings.TrimSpace(record[i]), nil
	}
	number := func(col string) (float64, error) {
		s, err := field(col)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", col, err)
		}
		return v, nil
	}

	var (
		r   Row
		err error
	)
	for _, dst := range []struct {
		col string
		s   *string
	}{
		{ColEncoder, &r.Encoder}, {ColCommit, &r.Commit}, {ColPreset, &r.Preset},
		{ColVideo, &r.Video}, {ColSize, &r.Size}, {ColType, &r.Type},
	} {
		if *dst.s, err = field(dst.col); err != nil {
			return Row{}, err
		}
	}
	for _, dst := range []struct {
		col string
		f   *float64
	}{
		{ColBitrate, &r.Bitrate}, {ColFirstTime, &r.FirstTime},
		{ColSecondTime, &r.SecondTime}, {ColDecodeTime, &r.DecodeTime},
	} {
		if *dst.f, err = number(dst.col); err != nil {
			return Row{}, err
		}
	}

	r.Quality = make(map[string]float64, len(b.schema.Quality))
	for _, q := range b.schema.Quality {
		v, err := number(q)
		if err != nil {
			return Row{}, err
		}
		r.Quality[q] = v
	}
	return r, nil
}
