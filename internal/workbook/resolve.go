package workbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pileworks/bom-service/internal/normalize"
)

// ErrSheetNotFound is returned when no sheet name matches the target label.
var ErrSheetNotFound = errors.New("sheet not found")

// Resolve finds the sheet whose name matches the target label. First pass is
// an exact match on the normalized names; the second pass takes the first
// name whose normalized form contains the normalized target as a substring.
// Ties go to the earlier sheet in workbook order.
func Resolve(sheetNames []string, targetLabel string) (string, error) {
	want := normalize.Label(targetLabel)

	for _, name := range sheetNames {
		if normalize.Label(name) == want {
			return name, nil
		}
	}

	for _, name := range sheetNames {
		if strings.Contains(normalize.Label(name), want) {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: no sheet matching %q (available: %s)",
		ErrSheetNotFound, targetLabel, strings.Join(sheetNames, ", "))
}
