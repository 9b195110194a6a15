// Package columns resolves spreadsheet column letters to zero-based indices.
package columns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidColumnLetter is returned when a column letter is empty or
// contains characters outside A-Z.
var ErrInvalidColumnLetter = errors.New("invalid column letter")

// LetterToIndex converts a spreadsheet column name ("A", "AA", ...) to a
// zero-based column index. Input is trimmed and case-insensitive; anything
// outside A-Z fails with ErrInvalidColumnLetter.
func LetterToIndex(letters string) (int, error) {
	s := strings.TrimSpace(letters)
	if s == "" {
		return -1, fmt.Errorf("%w: empty input, use A-Z (or AA, AB, ...)", ErrInvalidColumnLetter)
	}

	n, err := excelize.ColumnNameToNumber(s)
	if err != nil {
		return -1, fmt.Errorf("%w: %q, use A-Z (or AA, AB, ...)", ErrInvalidColumnLetter, letters)
	}
	return n - 1, nil
}

// IndexToLetter converts a zero-based column index back to its spreadsheet
// column name.
func IndexToLetter(index int) (string, error) {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return "", fmt.Errorf("column index %d out of range: %w", index, err)
	}
	return name, nil
}
