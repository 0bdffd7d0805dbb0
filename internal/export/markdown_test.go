package export

import (
	"bytes"
	"strings"
	"testing"
)

func TestMarkdownExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(sampleTable(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()

	wantLines := []string{
		"## preview",
		"| a | b |",
		"| --- | --- |",
		"| 1 | x |",
		"| 2 | y\\|z |",
		"|  | multi<br>line |",
		"_3 row(s)_",
	}
	for _, want := range wantLines {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownExporter_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(&Table{}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No columns") {
		t.Errorf("Export() = %q", buf.String())
	}
}
