package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pileworks/bom-service/internal/extract"
	"github.com/pileworks/bom-service/internal/normalize"
	"github.com/pileworks/bom-service/internal/workbook"
)

var (
	extractSheet  string
	extractPole   string
	extractX      string
	extractY      string
	extractZ      string
	extractFrame  string
	extractOutput string
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract survey columns from a BOM spreadsheet",
	Long: `Extract pole survey columns from a BOM spreadsheet. The worksheet is located
by name (exact match first, then substring), the header row is found by the
Pole/X/Y/Z labels at the mapped column letters, and the data rows below it
are extracted as aligned sequences.`,
	Example: `  bom-service extract ./survey.xlsx --pole C --x D --y E --z H
  bom-service extract ./survey.xlsx --sheet "Piling Information" --frame F
  bom-service extract ./export.csv --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractSheet, "sheet", "", "Worksheet name (default from config)")
	extractCmd.Flags().StringVar(&extractPole, "pole", "A", "Pole column letter")
	extractCmd.Flags().StringVar(&extractX, "x", "B", "X column letter")
	extractCmd.Flags().StringVar(&extractY, "y", "C", "Y column letter")
	extractCmd.Flags().StringVar(&extractZ, "z", "D", "Z column letter")
	extractCmd.Flags().StringVar(&extractFrame, "frame", "", "Optional frame column letter")
	extractCmd.Flags().StringVar(&extractOutput, "output", "table", "Output format: table or json")
}

func runExtract(cmd *cobra.Command, args []string) error {
	mapping, err := extract.MappingFromLetters(extractPole, extractX, extractY, extractZ, extractFrame)
	if err != nil {
		return fmt.Errorf("invalid column letters: %w", err)
	}

	sheet, err := loadSheet(args[0], extractSheet)
	if err != nil {
		return err
	}

	extractor := newExtractor()
	result, err := extractor.Extract(sheet.Rows, mapping)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	result.SheetName = sheet.Name

	return outputResult(result)
}

// loadSheet decodes a file and resolves the target worksheet. A single-sheet
// file falls back to its only sheet when the name does not match.
func loadSheet(filePath, target string) (*workbook.Sheet, error) {
	if target == "" {
		if cfg != nil && cfg.Extraction.TargetSheet != "" {
			target = cfg.Extraction.TargetSheet
		} else {
			target = "Piling Information"
		}
	}

	logger.Info().Str("file", filePath).Msg("Reading file")
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	wb, err := workbook.Decode(content, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file: %w", err)
	}

	names := wb.SheetNames()
	name, err := workbook.Resolve(names, target)
	if err != nil {
		if len(names) == 1 {
			name = names[0]
		} else {
			return nil, fmt.Errorf("worksheet %q not found; available: %s", target, strings.Join(names, ", "))
		}
	}

	sheet, _ := wb.Sheet(name)
	return sheet, nil
}

func newExtractor() *extract.Extractor {
	opts := extract.DefaultOptions()
	if cfg != nil && cfg.Extraction.EmptyStreakLimit > 0 {
		opts.EmptyStreakLimit = cfg.Extraction.EmptyStreakLimit
	}
	return extract.New(opts)
}

func outputResult(result *extract.Result) error {
	switch strings.ToLower(extractOutput) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "table":
		outputResultTable(result)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", extractOutput)
	}
}

func outputResultTable(result *extract.Result) {
	fmt.Printf("\nExtracted %d rows from %q (data starts at row %d)\n",
		result.Len(), result.SheetName, result.StartOffset+1)
	fmt.Println(strings.Repeat("-", 60))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	if result.Frame != nil {
		fmt.Fprintf(w, "Pole\tX\tY\tZ\tFrame\n")
	} else {
		fmt.Fprintf(w, "Pole\tX\tY\tZ\n")
	}

	const previewRows = 20
	for i := 0; i < result.Len() && i < previewRows; i++ {
		if result.Frame != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				normalize.FormatCell(result.Pole[i]), result.X[i], result.Y[i], result.Z[i], result.Frame[i])
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				normalize.FormatCell(result.Pole[i]), result.X[i], result.Y[i], result.Z[i])
		}
	}
	w.Flush()

	if result.Len() > previewRows {
		fmt.Printf("... and %d more rows (use --output json for everything)\n", result.Len()-previewRows)
	}
}
