package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadCSV parses CSV input into a raw table. Ragged rows are tolerated:
// short rows are padded with empty cells and long rows truncated to the
// header width, so a sloppy export never aborts an ingestion. Input with
// no data rows is an error.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, errors.New("empty input")
	}
	if len(rows) == 1 {
		return Table{}, errors.New("no data rows after header")
	}

	header := rows[0]
	width := len(header)
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		case len(row) > width:
			row = row[:width]
		}
		data = append(data, row)
	}

	return Table{Header: header, Rows: data}, nil
}

// ReadCSVFile reads and parses one CSV file.
func ReadCSVFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
