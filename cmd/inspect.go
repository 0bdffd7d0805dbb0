package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/export"
	"github.com/iksnae/cellbook/internal/notebook"
	"github.com/iksnae/cellbook/internal/settings"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Inspect the schema inferred for a file",
	Long: `Load a CSV or TSV file into a throwaway engine and show:
  • The inferred schema (columns, types)
  • Row count
  • Sample rows

No host session is started, so external reads and exports are unavailable.

Examples:
  cellbook inspect sales.csv
  cellbook inspect sales.tsv --format json --sample 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFormat != "text" && inspectFormat != "json" {
			return fmt.Errorf("unsupported format %q (text, json)", inspectFormat)
		}
		report, err := inspectFile(cmd.Context(), args[0], inspectSampleRows)
		if err != nil {
			return err
		}
		if inspectFormat == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

// fileReport summarizes how a file loads into the engine
type fileReport struct {
	File    string                   `json:"file"`
	Rows    int64                    `json:"rows"`
	Columns []engine.Column          `json:"columns"`
	Sample  []map[string]interface{} `json:"sample"`

	sample *export.Table
}

func inspectFile(ctx context.Context, path string, sample int) (*fileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if sample <= 0 {
		sample = 1
	}
	payload := notebook.Payload{
		Name:      filepath.Base(path),
		Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Data:      data,
	}
	prefs := settings.Defaults()
	prefs.AutoDescribe = false
	prefs.PreviewRowLimit = sample
	queries, err := notebook.CanonicalQueries(payload, prefs)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewSQLiteFactory()(ctx)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	if err := eng.RegisterFile(payload.Name, payload.Data); err != nil {
		return nil, err
	}

	// setup, then preview
	if _, err := eng.Query(ctx, queries[0]); err != nil {
		return nil, err
	}
	preview, err := eng.Query(ctx, queries[len(queries)-1])
	if err != nil {
		return nil, err
	}
	count, err := eng.Query(ctx, fmt.Sprintf("SELECT count(*) FROM %s", notebook.TableName))
	if err != nil {
		return nil, err
	}

	report := &fileReport{
		File:    path,
		Columns: preview.Columns,
		sample:  engine.ToTable(notebook.TableName, preview),
	}
	if len(count.Rows) == 1 {
		if n, ok := count.Rows[0][0].(int64); ok {
			report.Rows = n
		}
	}
	report.Sample = report.sample.Rows
	return report, nil
}

func printReport(out io.Writer, r *fileReport) {
	fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("📦 %s", r.File)))
	fmt.Fprintf(out, "📊 Rows: %d\n\n", r.Rows)

	fmt.Fprintln(out, "📐 Schema:")
	for _, col := range r.Columns {
		fmt.Fprintf(out, "  • %s: %s\n", col.Name, col.Type)
	}
	fmt.Fprintln(out)

	if len(r.Sample) > 0 {
		fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(r.Sample))
		fmt.Fprintln(out, renderTable(r.sample))
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
