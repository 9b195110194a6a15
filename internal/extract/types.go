// Package extract implements the two-phase BOM column extraction engine:
// header-validated extraction on first load and header-agnostic extraction
// for user-driven remaps, sharing a learned start offset.
package extract

import (
	"errors"

	"github.com/pileworks/bom-service/internal/columns"
)

// NoColumn marks an unconfigured optional column slot.
const NoColumn = -1

// DefaultEmptyStreakLimit is the number of consecutive fully-empty rows that
// terminates data extraction. Tolerates sparse trailing blanks left by
// formatting without scanning an entire oversized sheet.
const DefaultEmptyStreakLimit = 25

// Extraction errors. All are terminal for the invocation; no partial result
// is returned alongside them.
var (
	ErrEmptySheet     = errors.New("sheet has no rows")
	ErrHeaderNotFound = errors.New("header row not found")
	ErrNoDataRows     = errors.New("no data rows found")
)

// Mapping holds zero-based column indices for the extracted slots. Frame is
// optional and set to NoColumn when unused. Indices need not be distinct;
// degenerate mappings are legal and simply produce duplicate data.
type Mapping struct {
	Pole  int `json:"pole"`
	X     int `json:"x"`
	Y     int `json:"y"`
	Z     int `json:"z"`
	Frame int `json:"frame"`
}

// HasFrame reports whether a frame column is configured.
func (m Mapping) HasFrame() bool {
	return m.Frame >= 0
}

// MappingFromLetters builds a Mapping from spreadsheet column letters. The
// frame letter may be empty; every other letter must resolve. Validation
// happens here, before any sheet data is touched.
func MappingFromLetters(pole, x, y, z, frame string) (Mapping, error) {
	m := Mapping{Frame: NoColumn}

	var err error
	if m.Pole, err = columns.LetterToIndex(pole); err != nil {
		return Mapping{}, err
	}
	if m.X, err = columns.LetterToIndex(x); err != nil {
		return Mapping{}, err
	}
	if m.Y, err = columns.LetterToIndex(y); err != nil {
		return Mapping{}, err
	}
	if m.Z, err = columns.LetterToIndex(z); err != nil {
		return Mapping{}, err
	}
	if frame != "" {
		if m.Frame, err = columns.LetterToIndex(frame); err != nil {
			return Mapping{}, err
		}
	}
	return m, nil
}

// Result holds the aligned extracted columns. All sequences have equal
// length: a row contributing to one column contributes to all, or to none
// when the row is empty. Pole is numerically coerced; X, Y, Z, and Frame
// keep their raw cell values until the plotting layer coerces them.
type Result struct {
	SheetName   string   `json:"sheetName"`
	Pole        []any    `json:"pole"`
	X           []string `json:"x"`
	Y           []string `json:"y"`
	Z           []string `json:"z"`
	Frame       []string `json:"frame,omitempty"`
	StartOffset int      `json:"startOffset"`
}

// Len returns the number of extracted rows.
func (r *Result) Len() int {
	return len(r.Pole)
}
