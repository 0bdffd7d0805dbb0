package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iksnae/cellbook/internal/host"
)

func TestOpenCommand_Script(t *testing.T) {
	e := newEnv(t)
	script := strings.Join([]string{
		"SELECT name",
		"FROM data WHERE score > 8",
		"ORDER BY name;",
		".bogus",
		"SELECT * FROM missing_table;",
		".cells",
		".quit",
		"SELECT 'never run';",
	}, "\n")
	rootCmd.SetIn(strings.NewReader(script))
	defer rootCmd.SetIn(nil)

	out, err := e.execute(t, "open", e.source)
	if err != nil {
		t.Fatalf("open error = %v\n%s", err, out)
	}
	for _, want := range []string{"read_csv('people.csv')", "alice", "carol", "missing_table"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "never run") {
		t.Errorf("statement after .quit was run:\n%s", out)
	}
}

func TestOpenCommand_EOFExits(t *testing.T) {
	e := newEnv(t)
	rootCmd.SetIn(strings.NewReader("SELECT count(*) AS n FROM data;"))
	defer rootCmd.SetIn(nil)

	out, err := e.execute(t, "open", e.source)
	if err != nil {
		t.Fatalf("open error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 row(s)") {
		t.Errorf("output = %s", out)
	}
}

func TestPromptFor(t *testing.T) {
	if !strings.Contains(promptFor(false), "cellbook>") {
		t.Errorf("promptFor(false) = %q", promptFor(false))
	}
	if !strings.Contains(promptFor(true), "...>") {
		t.Errorf("promptFor(true) = %q", promptFor(true))
	}
}

// countingReader tracks reads that are in progress
type countingReader struct {
	r        io.Reader
	inflight atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	return c.r.Read(p)
}

// stdinPrompter records whether stdin was being read while it was asked
type stdinPrompter struct {
	in     *countingReader
	reads  atomic.Int32
	asked  chan struct{}
	decide host.Decision
}

func (p *stdinPrompter) AskFileAccess(ctx context.Context, path string) (host.Decision, error) {
	p.reads.Store(p.in.inflight.Load())
	close(p.asked)
	return p.decide, nil
}

func (p *stdinPrompter) SaveLocation(ctx context.Context, defaultName, format string) (string, error) {
	return "", nil
}

func TestOpenCommand_PromptOwnsStdin(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "data", "scores.csv")
	if err := os.MkdirAll(filepath.Dir(other), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(other, []byte("id,bonus\n1,10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	in := &countingReader{r: pr}
	prompter := &stdinPrompter{in: in, asked: make(chan struct{}), decide: host.Allow}
	saved := newOpenPrompter
	newOpenPrompter = func() host.Prompter { return prompter }
	defer func() { newOpenPrompter = saved }()
	rootCmd.SetIn(in)
	defer rootCmd.SetIn(nil)

	go func() {
		_, _ = io.WriteString(pw, "SELECT bonus FROM read_csv('"+other+"');\n")
		select {
		case <-prompter.asked:
		case <-time.After(5 * time.Second):
		}
		_, _ = io.WriteString(pw, ".quit\n")
		_ = pw.Close()
	}()

	out, err := e.execute(t, "open", e.source)
	if err != nil {
		t.Fatalf("open error = %v\n%s", err, out)
	}
	select {
	case <-prompter.asked:
	default:
		t.Fatal("file access was never requested")
	}
	if n := prompter.reads.Load(); n != 0 {
		t.Errorf("%d stdin read(s) in progress during the prompt", n)
	}
	if !strings.Contains(out, "10") {
		t.Errorf("output missing external row:\n%s", out)
	}
}
