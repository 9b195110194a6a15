package extract

import (
	"fmt"
	"strings"

	"github.com/pileworks/bom-service/internal/normalize"
)

// Options configures an Extractor.
type Options struct {
	// EmptyStreakLimit overrides the consecutive-empty-row cutoff.
	EmptyStreakLimit int
}

// DefaultOptions returns the default extractor options.
func DefaultOptions() Options {
	return Options{EmptyStreakLimit: DefaultEmptyStreakLimit}
}

// Extractor extracts aligned survey columns from a decoded sheet grid. Each
// call is parameterized purely by its inputs, so one Extractor is safe for
// concurrent use.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.EmptyStreakLimit <= 0 {
		opts.EmptyStreakLimit = DefaultEmptyStreakLimit
	}
	return &Extractor{opts: opts}
}

// Extract scans for the Pole/X/Y/Z header row at the mapped indices, then
// extracts all data rows that follow. The returned StartOffset (header row
// + 1) is what remap extraction reuses for the same file.
func (e *Extractor) Extract(rows [][]string, m Mapping) (*Result, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	headerRow := -1
	for i, row := range rows {
		if isHeaderRow(row, m) {
			headerRow = i
			break
		}
	}
	if headerRow == -1 {
		return nil, fmt.Errorf("%w: no row has Pole/X/Y/Z labels at the mapped columns", ErrHeaderNotFound)
	}

	result := e.collect(rows, m, headerRow+1)
	if result.Len() == 0 {
		return nil, fmt.Errorf("%w: header matched at row %d but no usable rows follow", ErrNoDataRows, headerRow)
	}
	return result, nil
}

// ExtractFrom re-extracts columns starting directly at startOffset without
// evaluating any header predicate. The caller is trusted to supply the
// offset learned by Extract for the same file; the chosen columns do not
// need Pole/X/Y/Z labels at all. A negative offset defaults to row 0.
func (e *Extractor) ExtractFrom(rows [][]string, m Mapping, startOffset int) (*Result, error) {
	if startOffset < 0 {
		startOffset = 0
	}

	result := e.collect(rows, m, startOffset)
	if result.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing usable at start offset %d; re-check the column mapping", ErrNoDataRows, startOffset)
	}
	result.StartOffset = startOffset
	return result, nil
}

// collect runs the shared extraction loop: a single linear pass from start,
// appending non-empty rows and stopping once EmptyStreakLimit fully-empty
// rows occur in a row. Rows past the cutoff are never revisited.
func (e *Extractor) collect(rows [][]string, m Mapping, start int) *Result {
	result := &Result{
		Pole:        make([]any, 0),
		X:           make([]string, 0),
		Y:           make([]string, 0),
		Z:           make([]string, 0),
		StartOffset: start,
	}
	if m.HasFrame() {
		result.Frame = make([]string, 0)
	}

	emptyStreak := 0
	for i := start; i < len(rows); i++ {
		pole := cellAt(rows[i], m.Pole)
		x := cellAt(rows[i], m.X)
		y := cellAt(rows[i], m.Y)
		z := cellAt(rows[i], m.Z)

		if isBlank(pole) && isBlank(x) && isBlank(y) && isBlank(z) {
			emptyStreak++
			if emptyStreak >= e.opts.EmptyStreakLimit {
				break
			}
			continue
		}
		emptyStreak = 0

		result.Pole = append(result.Pole, normalize.Numeric(pole))
		result.X = append(result.X, x)
		result.Y = append(result.Y, y)
		result.Z = append(result.Z, z)
		if m.HasFrame() {
			result.Frame = append(result.Frame, cellAt(rows[i], m.Frame))
		}
	}

	return result
}

// isHeaderRow checks the four mapped cells of one row against the expected
// semantic labels. All four must hold on the same row.
func isHeaderRow(row []string, m Mapping) bool {
	return normalize.Label(cellAt(row, m.Pole)) == "pole" &&
		normalize.Label(cellAt(row, m.X)) == "x" &&
		normalize.Label(cellAt(row, m.Y)) == "y" &&
		isZLabel(normalize.Label(cellAt(row, m.Z)))
}

// isZLabel matches the elevation header variants seen across BOM revisions.
func isZLabel(label string) bool {
	return label == "z" ||
		label == "z terrain enter" ||
		strings.Contains(label, "z terrain")
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
