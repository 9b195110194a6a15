// Package normalize provides cell value normalization for BOM extraction.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

// Label normalizes a cell value for header comparison: trimmed, lowercased,
// with internal whitespace runs collapsed to a single space. Never applied
// to data values.
func Label(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Numeric coerces a cell value for the Pole column. An empty (or
// whitespace-only) cell stays an empty string, a finite number becomes a
// float64, and anything else is returned as the trimmed string.
func Numeric(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return t
}

// FormatCell renders a coerced cell value back to a display string.
func FormatCell(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return ""
	}
}
