// Package grading fills the grading-tool workbook templates with extracted
// survey columns. Templates are macro-enabled (.xlsm); excelize preserves
// the VBA project when rewriting them.
package grading

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pileworks/bom-service/internal/normalize"
)

// ContentType is the media type for the filled macro-enabled workbook.
const ContentType = "application/vnd.ms-excel.sheet.macroEnabled.12"

// FillRequest carries the tracker choice and the extracted columns to write
// into the template's Inputs sheet.
type FillRequest struct {
	TrackerType string `json:"tracker_type"`
	Pole        []any  `json:"pole"`
	X           []any  `json:"x"`
	Y           []any  `json:"y"`
	Z           []any  `json:"z"`
}

// TemplateFile returns the template filename for a tracker type.
func TemplateFile(tracker string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tracker)) {
	case "xtr":
		return "XTR.xlsm", nil
	case "flat":
		return "Flat Tracker Imperial.xlsm", nil
	default:
		return "", fmt.Errorf("tracker_type must be 'flat' or 'xtr', got %q", tracker)
	}
}

// Fill loads the tracker's template, writes the survey rows under the Inputs
// sheet headers, and returns the workbook bytes plus the download filename.
func Fill(templatesDir string, req FillRequest) ([]byte, string, error) {
	tracker := strings.ToLower(strings.TrimSpace(req.TrackerType))
	templateFile, err := TemplateFile(tracker)
	if err != nil {
		return nil, "", err
	}

	n := minLen(req.Pole, req.X, req.Y, req.Z)
	if n <= 0 {
		return nil, "", fmt.Errorf("no rows provided")
	}

	templatePath := filepath.Join(templatesDir, templateFile)
	if _, err := os.Stat(templatePath); err != nil {
		return nil, "", fmt.Errorf("template not found: %s", templateFile)
	}

	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open template %s: %w", templateFile, err)
	}
	defer f.Close()

	sheet, err := findInputsSheet(f)
	if err != nil {
		return nil, "", err
	}

	cols, err := locateColumns(f, sheet)
	if err != nil {
		return nil, "", err
	}

	// Overwrite rows 2..n+1 below the header; the rest of the sheet is
	// left as-is.
	for i := 0; i < n; i++ {
		row := 2 + i
		if err := setCell(f, sheet, cols.points, row, i+1); err != nil {
			return nil, "", err
		}
		if err := setCell(f, sheet, cols.easting, row, req.X[i]); err != nil {
			return nil, "", err
		}
		if err := setCell(f, sheet, cols.northing, row, req.Y[i]); err != nil {
			return nil, "", err
		}
		if err := setCell(f, sheet, cols.elevation, row, req.Z[i]); err != nil {
			return nil, "", err
		}
		if err := setCell(f, sheet, cols.description, row, req.Pole[i]); err != nil {
			return nil, "", err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	outName := fmt.Sprintf("GradingTool_Filled_%s.xlsm", strings.ToUpper(tracker))
	return buf.Bytes(), outName, nil
}

// findInputsSheet prefers the exact name "Inputs", otherwise the first
// case-insensitive match.
func findInputsSheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	for _, name := range sheets {
		if name == "Inputs" {
			return name, nil
		}
	}
	for _, name := range sheets {
		if normalize.Label(name) == "inputs" {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not find 'Inputs' sheet in template")
}

type inputColumns struct {
	points      int
	easting     int
	northing    int
	elevation   int
	description int
}

// locateColumns finds the 1-based header columns in row 1 by header text.
func locateColumns(f *excelize.File, sheet string) (inputColumns, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return inputColumns{}, fmt.Errorf("failed to read Inputs sheet: %w", err)
	}

	headers := make(map[string]int)
	if len(rows) > 0 {
		for i, cell := range rows[0] {
			label := normalize.Label(cell)
			if label == "" {
				continue
			}
			if _, seen := headers[label]; !seen {
				headers[label] = i + 1
			}
		}
	}

	colFor := func(names ...string) int {
		for _, name := range names {
			if col, ok := headers[name]; ok {
				return col
			}
		}
		return 0
	}

	cols := inputColumns{
		points:      colFor("points", "point"),
		easting:     colFor("easting", "x", "eastings"),
		northing:    colFor("northing", "y", "northings"),
		elevation:   colFor("elevation", "z", "rl", "level"),
		description: colFor("description", "pole", "id", "name"),
	}

	var missing []string
	if cols.points == 0 {
		missing = append(missing, "Points")
	}
	if cols.easting == 0 {
		missing = append(missing, "Easting")
	}
	if cols.northing == 0 {
		missing = append(missing, "Northing")
	}
	if cols.elevation == 0 {
		missing = append(missing, "Elevation")
	}
	if cols.description == 0 {
		missing = append(missing, "Description")
	}
	if len(missing) > 0 {
		return inputColumns{}, fmt.Errorf("Inputs sheet missing expected header(s): %s", strings.Join(missing, ", "))
	}

	return cols, nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func minLen(cols ...[]any) int {
	n := -1
	for _, c := range cols {
		if n == -1 || len(c) < n {
			n = len(c)
		}
	}
	return n
}
