package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Table is a materialized query result in column order
type Table struct {
	Name        string
	Columns     []string
	ColumnTypes []string
	Rows        []map[string]interface{}
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(table *Table, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return &CSVExporter{Delimiter: ','}, nil
	case "tsv":
		return &CSVExporter{Delimiter: '\t'}, nil
	case "jsonl", "ndjson":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: csv, tsv, jsonl, md, yaml, json)", format)
	}
}

// Bytes renders a table in the given format into memory.
func Bytes(table *Table, format string) ([]byte, error) {
	exporter, err := NewExporter(format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := exporter.Export(table, &buf); err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// orderedRows returns each row as values in column order.
func orderedRows(table *Table) [][]interface{} {
	out := make([][]interface{}, 0, len(table.Rows))
	for _, row := range table.Rows {
		values := make([]interface{}, len(table.Columns))
		for i, col := range table.Columns {
			values[i] = row[col]
		}
		out = append(out, values)
	}
	return out
}
