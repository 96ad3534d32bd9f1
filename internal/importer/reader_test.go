package importer

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	return path
}

func TestReadCSVRowsByOffset(t *testing.T) {
	path := writeCSV(t, "name,city\nA,Rome\nB,Oslo\nC,Lima\n")

	header, rows, err := readRows(path, FormatCSV, ',', 0, 2)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if len(header) != 2 || header[0] != "name" {
		t.Fatalf("unexpected header %v", header)
	}
	if len(rows) != 2 || rows[0][0] != "A" || rows[1][0] != "B" {
		t.Fatalf("unexpected first chunk %v", rows)
	}

	_, rows, err = readRows(path, FormatCSV, ',', 2, 2)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "C" {
		t.Fatalf("unexpected second chunk %v", rows)
	}

	_, rows, err = readRows(path, FormatCSV, ',', 3, 2)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected empty read past the end, got %v err=%v", rows, err)
	}
}

func TestReadCSVRowsCustomDelimiter(t *testing.T) {
	path := writeCSV(t, "name;city\nA;Rome\n")
	header, rows, err := readRows(path, FormatCSV, ';', 0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(header) != 2 || header[1] != "city" {
		t.Fatalf("unexpected header %v", header)
	}
	if len(rows) != 1 || rows[0][1] != "Rome" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestReadCSVRowsRaggedRecords(t *testing.T) {
	path := writeCSV(t, "name,city,notes\nA,Rome\nB,Oslo,cold,extra\n")
	_, rows, err := readRows(path, FormatCSV, ',', 0, 10)
	if err != nil {
		t.Fatalf("ragged rows must be tolerated: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 4 {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestReadRowsUnknownFormat(t *testing.T) {
	if _, _, err := readRows("whatever", "ods", ',', 0, 1); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
