// Package workbook decodes uploaded BOM files (XLSX, CSV, or a ZIP
// containing one) into named sheets of raw cell grids and resolves the
// target worksheet by label.
package workbook

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is a named 2D grid of raw cell values, row-major, 0-indexed.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook holds the decoded sheets of one uploaded file in workbook order.
type Workbook struct {
	FileName string
	Sheets   []Sheet
}

// SheetNames returns sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the sheet with the given name.
func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	for i := range w.Sheets {
		if w.Sheets[i].Name == name {
			return &w.Sheets[i], true
		}
	}
	return nil, false
}

// Decode parses raw file bytes into a Workbook. The format is chosen by the
// file extension: .xlsx/.xlsm via excelize, .csv/.txt as delimited text,
// .zip is expanded and the first contained spreadsheet is decoded.
func Decode(content []byte, filename string) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return decodeExcel(content, filename)
	case ".csv", ".txt":
		return decodeCSV(content, filename)
	case ".zip":
		return decodeZip(content, filename)
	default:
		return nil, fmt.Errorf("unsupported file type %q (expected .xlsx, .xlsm, .csv, or .zip)", filepath.Ext(filename))
	}
}

func decodeExcel(content []byte, filename string) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	wb := &Workbook{FileName: filename, Sheets: make([]Sheet, 0, len(sheetList))}
	for _, name := range sheetList {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read worksheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// decodeCSV decodes a delimited text file into a single sheet named after
// the file stem. Encoding is detected and converted to UTF-8 first.
func decodeCSV(content []byte, filename string) (*Workbook, error) {
	text, err := DecodeText(content, DetectEncoding(content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode CSV text: %w", err)
	}
	text = strings.TrimPrefix(text, "\uFEFF")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return &Workbook{
		FileName: filename,
		Sheets:   []Sheet{{Name: stem, Rows: rows}},
	}, nil
}

// detectDelimiter picks the delimiter with the most occurrences in the
// first line, defaulting to comma.
func detectDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}

	best, count := ',', strings.Count(line, ",")
	for _, cand := range []rune{';', '\t'} {
		if c := strings.Count(line, string(cand)); c > count {
			best, count = cand, c
		}
	}
	return best
}
