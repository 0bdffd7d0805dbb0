package export

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter exports tables as a GitHub-flavoured Markdown table
type MarkdownExporter struct{}

// Export exports a table to Markdown format
func (e *MarkdownExporter) Export(table *Table, w io.Writer) error {
	if table.Name != "" {
		_, _ = fmt.Fprintf(w, "## %s\n\n", table.Name)
	}
	if len(table.Columns) == 0 {
		_, err := fmt.Fprintf(w, "_No columns_\n")
		return err
	}

	header := make([]string, len(table.Columns))
	rule := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = escapeCell(col)
		rule[i] = "---"
	}
	if _, err := fmt.Fprintf(w, "| %s |\n| %s |\n", strings.Join(header, " | "), strings.Join(rule, " | ")); err != nil {
		return err
	}

	cells := make([]string, len(table.Columns))
	for _, values := range orderedRows(table) {
		for i, v := range values {
			cells[i] = escapeCell(FormatValue(v))
		}
		if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | ")); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(w, "\n_%d row(s)_\n", len(table.Rows))
	return nil
}

// escapeCell keeps a value on one table line
func escapeCell(text string) string {
	text = strings.ReplaceAll(text, "|", "\\|")
	text = strings.ReplaceAll(text, "\r\n", "<br>")
	return strings.ReplaceAll(text, "\n", "<br>")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
