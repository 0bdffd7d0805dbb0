package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

type yamlTable struct {
	Name    string                   `yaml:"name,omitempty"`
	Columns []yamlColumn             `yaml:"columns"`
	Rows    []map[string]interface{} `yaml:"rows"`
}

type yamlColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// YAMLExporter exports tables with their schema in YAML format
type YAMLExporter struct{}

// Export exports a table to YAML format
func (e *YAMLExporter) Export(table *Table, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	doc := yamlTable{
		Name:    table.Name,
		Columns: make([]yamlColumn, len(table.Columns)),
		Rows:    table.Rows,
	}
	for i, name := range table.Columns {
		doc.Columns[i].Name = name
		if i < len(table.ColumnTypes) {
			doc.Columns[i].Type = table.ColumnTypes[i]
		}
	}
	if doc.Rows == nil {
		doc.Rows = []map[string]interface{}{}
	}

	return enc.Encode(doc)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
