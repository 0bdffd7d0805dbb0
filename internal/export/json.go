package export

import (
	"encoding/json"
	"io"
)

// JSONExporter exports a table as a pretty-printed array of row objects
type JSONExporter struct{}

// Export exports a table to JSON format
func (e *JSONExporter) Export(table *Table, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	rows := table.Rows
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return enc.Encode(rows)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
