package fact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// GeographyColumn and ValueColumn name the fixed columns of the long CSV
// layout: geography,<dims...>,value.
const (
	GeographyColumn = "geography"
	ValueColumn     = "value"
)

// ReadCSV reads a table in long CSV layout. The first column must be
// GeographyColumn and the last ValueColumn; the columns in between are the
// dimensions.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || header[0] != GeographyColumn || header[len(header)-1] != ValueColumn {
		return nil, fmt.Errorf("unexpected header %v: want %s,<dims...>,%s", header, GeographyColumn, ValueColumn)
	}
	dims := append([]string(nil), header[1:len(header)-1]...)
	t := New(dims...)

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse value: %w", line, err)
		}
		values := append([]string(nil), rec[1:len(rec)-1]...)
		if err := t.Add(rec[0], v, values...); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return t, nil
}

// WriteCSV writes t in long CSV layout, rows in insertion order.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(t.dims)+2)
	header = append(header, GeographyColumn)
	header = append(header, t.dims...)
	header = append(header, ValueColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, r := range t.rows {
		rec[0] = r.Geo
		copy(rec[1:], r.Values)
		rec[len(rec)-1] = strconv.FormatFloat(r.Value, 'g', -1, 64)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
