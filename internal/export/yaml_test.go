package export

import (
	"bytes"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestYAMLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleTable(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var doc struct {
		Name    string `yaml:"name"`
		Columns []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
		} `yaml:"columns"`
		Rows []map[string]interface{} `yaml:"rows"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if doc.Name != "preview" {
		t.Errorf("name = %q", doc.Name)
	}
	if len(doc.Columns) != 2 || doc.Columns[0].Type != "BIGINT" {
		t.Errorf("columns = %+v", doc.Columns)
	}
	if len(doc.Rows) != 3 {
		t.Errorf("len(rows) = %d, want 3", len(doc.Rows))
	}
}
