package internal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name     string
		tty      bool
		err      error
		wantMark string
	}{
		{name: "terminal success", tty: true, wantMark: "✓"},
		{name: "terminal failure", tty: true, err: errors.New("file is empty"), wantMark: "✗"},
		{name: "no terminal", tty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := newProgress(&buf, tt.tty, "Loading people.csv")
			p.Update("Loading people.csv: CREATE OR REPLACE TABLE data")
			p.Finish(tt.err)
			p.Finish(nil)

			out := buf.String()
			if !tt.tty {
				if out != "" {
					t.Errorf("wrote %q without a terminal", out)
				}
				return
			}
			if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
				t.Errorf("want exactly one final line, got %q", out)
			}
			last := out[strings.LastIndex(out, "\r"):]
			if !strings.Contains(last, tt.wantMark) || !strings.Contains(last, "CREATE OR REPLACE TABLE data") {
				t.Errorf("final line = %q", last)
			}
		})
	}
}

func TestPrintFunctions(t *testing.T) {
	PrintSuccess("exported")
	PrintError("failed")
	PrintInfo("info")
	PrintWarning("careful")
}
