package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pileworks/bom-service/internal/extract"
)

var (
	remapSheet  string
	remapPole   string
	remapX      string
	remapY      string
	remapZ      string
	remapFrame  string
	remapOffset int
)

// remapCmd represents the remap command
var remapCmd = &cobra.Command{
	Use:   "remap <file>",
	Short: "Re-extract columns at a known start offset",
	Long: `Re-extract columns from a BOM spreadsheet starting directly at a known data
row, without looking for a header. Use the start offset reported by a prior
extract run; the chosen columns need no Pole/X/Y/Z labels at all.`,
	Example: `  bom-service remap ./survey.xlsx --offset 3 --pole C --x D --y E --z F
  bom-service remap ./survey.xlsx --offset 3 --z F --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runRemap,
}

func init() {
	rootCmd.AddCommand(remapCmd)

	remapCmd.Flags().StringVar(&remapSheet, "sheet", "", "Worksheet name (default from config)")
	remapCmd.Flags().IntVar(&remapOffset, "offset", 0, "Zero-based row index where data starts (required)")
	remapCmd.Flags().StringVar(&remapPole, "pole", "A", "Pole column letter")
	remapCmd.Flags().StringVar(&remapX, "x", "B", "X column letter")
	remapCmd.Flags().StringVar(&remapY, "y", "C", "Y column letter")
	remapCmd.Flags().StringVar(&remapZ, "z", "D", "Z column letter")
	remapCmd.Flags().StringVar(&remapFrame, "frame", "", "Optional frame column letter")
	remapCmd.Flags().StringVar(&extractOutput, "output", "table", "Output format: table or json")
	remapCmd.MarkFlagRequired("offset")
}

func runRemap(cmd *cobra.Command, args []string) error {
	mapping, err := extract.MappingFromLetters(remapPole, remapX, remapY, remapZ, remapFrame)
	if err != nil {
		return fmt.Errorf("invalid column letters: %w", err)
	}

	sheet, err := loadSheet(args[0], remapSheet)
	if err != nil {
		return err
	}

	extractor := newExtractor()
	result, err := extractor.ExtractFrom(sheet.Rows, mapping, remapOffset)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	result.SheetName = sheet.Name

	return outputResult(result)
}
