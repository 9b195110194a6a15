// Package plot shapes an extraction result into the flat numeric payload the
// plotting surface consumes: coordinate pairs plus per-point labels keyed to
// the per-frame detail navigation.
package plot

import (
	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/normalize"
)

// Point is one plottable survey point.
type Point struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     *float64 `json:"z,omitempty"`
	Label string   `json:"label"`
	Frame string   `json:"frame,omitempty"`
	// Row is the index into the extracted columns, used to jump from a
	// clicked point back to its table row.
	Row int `json:"row"`
}

// Data is the payload handed to the plotting collaborator.
type Data struct {
	SheetName string  `json:"sheetName"`
	Points    []Point `json:"points"`
	// Skipped counts rows whose X or Y did not coerce to a number and were
	// left out of the scatter.
	Skipped int `json:"skipped"`
}

// Points builds the scatter payload from aligned extracted columns.
func Points(res *extract.Result) Data {
	data := Data{
		SheetName: res.SheetName,
		Points:    make([]Point, 0, res.Len()),
	}

	for i := 0; i < res.Len(); i++ {
		x, xOK := asNumber(res.X[i])
		y, yOK := asNumber(res.Y[i])
		if !xOK || !yOK {
			data.Skipped++
			continue
		}

		p := Point{
			X:     x,
			Y:     y,
			Label: normalize.FormatCell(res.Pole[i]),
			Row:   i,
		}
		if z, ok := asNumber(res.Z[i]); ok {
			p.Z = &z
		}
		if res.Frame != nil {
			p.Frame = res.Frame[i]
		}
		data.Points = append(data.Points, p)
	}

	return data
}

func asNumber(raw string) (float64, bool) {
	f, ok := normalize.Numeric(raw).(float64)
	return f, ok
}
