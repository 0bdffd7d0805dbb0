package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLExporter exports tables in JSONL format (one row object per line)
type JSONLExporter struct{}

// Export exports a table to JSONL format
func (e *JSONLExporter) Export(table *Table, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, row := range table.Rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
