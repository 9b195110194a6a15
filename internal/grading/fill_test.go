package grading

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeTemplate(t *testing.T, dir, filename, sheetName string, headers []any) string {
	t.Helper()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", sheetName))
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &headers))

	path := filepath.Join(dir, filename)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestFillXTRTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "XTR.xlsm", "Inputs",
		[]any{"Points", "Easting", "Northing", "Elevation", "Description"})

	req := FillRequest{
		TrackerType: "XTR",
		Pole:        []any{"P-1", "P-2"},
		X:           []any{100.5, 101.0},
		Y:           []any{200.0, 201.0},
		Z:           []any{300.0, 301.0},
	}

	content, name, err := Fill(dir, req)
	require.NoError(t, err)
	assert.Equal(t, "GradingTool_Filled_XTR.xlsm", name)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Inputs", "A2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = f.GetCellValue("Inputs", "B2")
	require.NoError(t, err)
	assert.Equal(t, "100.5", v)

	v, err = f.GetCellValue("Inputs", "E3")
	require.NoError(t, err)
	assert.Equal(t, "P-2", v)
}

func TestFillCaseInsensitiveInputsSheet(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "Flat Tracker Imperial.xlsm", " inputs ",
		[]any{"Point", "X", "Y", "Z", "Pole"})

	req := FillRequest{
		TrackerType: "flat",
		Pole:        []any{"P-1"},
		X:           []any{1.0},
		Y:           []any{2.0},
		Z:           []any{3.0},
	}

	content, name, err := Fill(dir, req)
	require.NoError(t, err)
	assert.Equal(t, "GradingTool_Filled_FLAT.xlsm", name)
	assert.NotEmpty(t, content)
}

func TestFillRowCountIsMinAcrossColumns(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "XTR.xlsm", "Inputs",
		[]any{"Points", "Easting", "Northing", "Elevation", "Description"})

	req := FillRequest{
		TrackerType: "xtr",
		Pole:        []any{"P-1", "P-2", "P-3"},
		X:           []any{1.0, 2.0},
		Y:           []any{1.0, 2.0, 3.0},
		Z:           []any{1.0, 2.0, 3.0},
	}

	content, _, err := Fill(dir, req)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	// Only two rows were written.
	v, err := f.GetCellValue("Inputs", "A4")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestFillErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("invalid tracker", func(t *testing.T) {
		_, _, err := Fill(dir, FillRequest{TrackerType: "vertical"})
		assert.ErrorContains(t, err, "tracker_type")
	})

	t.Run("no rows", func(t *testing.T) {
		_, _, err := Fill(dir, FillRequest{TrackerType: "xtr"})
		assert.ErrorContains(t, err, "no rows")
	})

	t.Run("template missing", func(t *testing.T) {
		_, _, err := Fill(dir, FillRequest{
			TrackerType: "xtr",
			Pole:        []any{"P-1"}, X: []any{1.0}, Y: []any{1.0}, Z: []any{1.0},
		})
		assert.ErrorContains(t, err, "template not found")
	})

	t.Run("missing headers", func(t *testing.T) {
		sub := t.TempDir()
		writeTemplate(t, sub, "XTR.xlsm", "Inputs", []any{"Points", "Easting"})
		_, _, err := Fill(sub, FillRequest{
			TrackerType: "xtr",
			Pole:        []any{"P-1"}, X: []any{1.0}, Y: []any{1.0}, Z: []any{1.0},
		})
		assert.ErrorContains(t, err, "missing expected header")
	})

	t.Run("missing inputs sheet", func(t *testing.T) {
		sub := t.TempDir()
		writeTemplate(t, sub, "XTR.xlsm", "Data", []any{"Points"})
		_, _, err := Fill(sub, FillRequest{
			TrackerType: "xtr",
			Pole:        []any{"P-1"}, X: []any{1.0}, Y: []any{1.0}, Z: []any{1.0},
		})
		assert.ErrorContains(t, err, "Inputs")
	})
}
