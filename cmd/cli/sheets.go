package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pileworks/bom-service/internal/workbook"
)

var sheetsOutput string

// sheetsCmd represents the sheets command
var sheetsCmd = &cobra.Command{
	Use:   "sheets <file>",
	Short: "List the worksheets in a BOM file",
	Example: `  bom-service sheets ./survey.xlsx
  bom-service sheets ./survey.xlsx --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runSheets,
}

func init() {
	rootCmd.AddCommand(sheetsCmd)

	sheetsCmd.Flags().StringVar(&sheetsOutput, "output", "table", "Output format: table or json")
}

type sheetInfo struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

func runSheets(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	wb, err := workbook.Decode(content, filePath)
	if err != nil {
		return fmt.Errorf("failed to decode file: %w", err)
	}

	infos := make([]sheetInfo, 0, len(wb.Sheets))
	for _, sheet := range wb.Sheets {
		maxCols := 0
		for _, row := range sheet.Rows {
			if len(row) > maxCols {
				maxCols = len(row)
			}
		}
		infos = append(infos, sheetInfo{Name: sheet.Name, Rows: len(sheet.Rows), Columns: maxCols})
	}

	switch strings.ToLower(sheetsOutput) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "table":
		fmt.Printf("\nWorksheets in %s\n", filePath)
		fmt.Println(strings.Repeat("-", 60))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "Name\tRows\tColumns\n")
		fmt.Fprintf(w, "----\t----\t-------\n")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%d\n", info.Name, info.Rows, info.Columns)
		}
		w.Flush()
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", sheetsOutput)
	}
}
