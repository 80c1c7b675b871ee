package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := strings.Join([]string{
		"Date,Amount,Description,Category",
		"2025-01-05,12.50,coffee,food",
		"2025-01-06,40,groceries,food",
	}, "\n")

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Header) != 4 || len(table.Rows) != 2 {
		t.Fatalf("got %d columns, %d rows", len(table.Header), len(table.Rows))
	}
	if table.Rows[0][2] != "coffee" {
		t.Fatalf("cell = %q", table.Rows[0][2])
	}
}

func TestReadCSVRaggedRows(t *testing.T) {
	in := strings.Join([]string{
		"date,amount,description",
		"2025-01-05,12.50",                    // short: padded
		"2025-01-06,40,groceries,extra,cells", // long: truncated
	}, "\n")

	table, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Header) {
			t.Fatalf("row %d has %d cells, want %d", i, len(row), len(table.Header))
		}
	}
	if table.Rows[0][2] != "" {
		t.Fatalf("padded cell = %q, want empty", table.Rows[0][2])
	}
	if table.Rows[1][2] != "groceries" {
		t.Fatalf("truncated row lost a real cell: %q", table.Rows[1][2])
	}
}

func TestReadCSVRejectsEmptyInput(t *testing.T) {
	cases := []string{
		"",
		"date,amount,description",
	}
	for i, in := range cases {
		if _, err := ReadCSV(strings.NewReader(in)); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestReadCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.csv")
	content := "date,amount,description\n2025-01-05,12.50,coffee\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := ReadCSVFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Empty() || len(table.Rows) != 1 {
		t.Fatalf("unexpected table: %+v", table)
	}

	if _, err := ReadCSVFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
