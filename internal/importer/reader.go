package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"
)

// Source file formats accepted by the parse stage.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// readRows returns the header row plus up to limit data rows starting at
// offset. The file is reopened per call so a unit of work never holds a
// handle across ticks.
func readRows(path, format string, comma rune, offset, limit int) ([]string, [][]string, error) {
	switch format {
	case FormatXLSX:
		return readXLSXRows(path, offset, limit)
	case FormatCSV, "":
		return readCSVRows(path, comma, offset, limit)
	default:
		return nil, nil, fmt.Errorf("unsupported source format %q", format)
	}
}

func readCSVRows(path string, comma rune, offset, limit int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	for skipped := 0; skipped < offset; skipped++ {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return header, nil, nil
			}
			return nil, nil, err
		}
	}

	rows := make([][]string, 0, limit)
	for len(rows) < limit {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, err
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func readXLSXRows(path string, offset, limit int) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets in workbook")
	}
	iter, err := f.Rows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	defer iter.Close()

	var header []string
	rows := make([][]string, 0, limit)
	index := -1
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			return nil, nil, err
		}
		index++
		if index == 0 {
			header = row
			continue
		}
		if index-1 < offset {
			continue
		}
		rows = append(rows, row)
		if len(rows) == limit {
			break
		}
	}
	if header == nil {
		return nil, nil, fmt.Errorf("empty workbook sheet %q", sheets[0])
	}
	return header, rows, nil
}
