package metrics

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RowError locates a record that could not be loaded.
type RowError struct {
	Source string
	Line   int
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// maxLineBytes bounds a single measurement line.
const maxLineBytes = 1 << 20

// ReadCSV loads a comma-separated measurement table. The first non-blank
// line must be a header matching schema. Each physical line is parsed on its
// own, since measurement fields never contain newlines, so a malformed line
// (an unterminated quote included) costs only itself: it is returned as a
// RowError and the remaining records still load. The returned error is
// non-nil only when the input as a whole is unusable.
func ReadCSV(r io.Reader, source string, schema Schema) (*Table, []*RowError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		binding *Binding
		table   *Table
		rowErrs []*RowError
	)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		record, err := parseLine(text)
		if binding == nil {
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: read header: %w", source, line, err)
			}
			binding, err = schema.Bind(record)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", source, err)
			}
			table = NewTable(schema)
			continue
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Source: source, Line: line, Err: err})
			continue
		}

		row, err := binding.Row(record)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Source: source, Line: line, Err: err})
			continue
		}
		table.Append(row)
	}
	if err := sc.Err(); err != nil {
		return nil, rowErrs, fmt.Errorf("%s:%d: %w", source, line+1, err)
	}
	if binding == nil {
		return nil, nil, fmt.Errorf("%s: %w: missing header", source, ErrSchemaMismatch)
	}

	return table, rowErrs, nil
}

// parseLine splits one physical line into fields.
func parseLine(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	record, err := cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.Err
		}
		return nil, err
	}
	return record, nil
}

// WriteCSV writes the table with a header in schema order.
func WriteCSV(w io.Writer, t *Table) error {
	schema := t.Schema()
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Header()); err != nil {
		return err
	}

	record := make([]string, 0, len(schema.Columns)+len(schema.Quality))
	for _, r := range t.rows {
		record = record[:0]
		for _, col := range schema.Columns {
			record = append(record, r.column(col))
		}
		for _, q := range schema.Quality {
			record = append(record, formatFloat(r.Quality[q]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
