package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/host"
	"github.com/iksnae/cellbook/internal/notebook"
)

// openCmd starts an interactive notebook on a file
var openCmd = &cobra.Command{
	Use:   "open <file>",
	Short: "Open a CSV or TSV file as an interactive notebook",
	Long: `Load a file, run the setup cells and read statements from stdin. A
statement ends with a semicolon at the end of a line.

Ctrl-C stops the running cell and rebuilds the session; pressing it while
nothing is running exits.

Commands:
  .cells             reprint every cell
  .export <format>   export the last successful cell (csv, json, jsonl, yaml, md)
  .refresh           reload the file and re-run the setup cells
  .set <key> <value> change a persisted setting
  .quit              exit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := startApp(ctx, cfg, args[0], newOpenPrompter())
		if err != nil {
			return err
		}
		defer func() { reportDiagnostics(a.Close()) }()

		r := &repl{nb: a.nb, out: cmd.OutOrStdout(), interactive: internal.IsTerminal()}
		for i, c := range a.nb.Cells() {
			fmt.Fprintln(r.out, renderCell(c, i+1))
		}

		events, stop := a.nb.Subscribe(16)
		defer stop()
		go r.notices(events)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				if !r.interrupt() {
					cancel()
					return
				}
			}
		}()

		return r.loop(ctx, cmd.InOrStdin())
	},
}

// newOpenPrompter asks on the terminal. Prompts share stdin with the REPL,
// which therefore reads a line only when it is idle.
var newOpenPrompter = func() host.Prompter { return host.NewSurveyPrompter() }

type repl struct {
	nb          *notebook.Notebook
	out         io.Writer
	interactive bool

	mu      sync.Mutex
	running string
	last    string // last cell that succeeded
}

// interrupt stops the running cell; it reports false when nothing runs
func (r *repl) interrupt() bool {
	r.mu.Lock()
	id := r.running
	r.mu.Unlock()
	if id == "" {
		return false
	}
	if err := r.nb.Stop(id); err != nil && !errors.Is(err, notebook.ErrNotRunning) {
		internal.LogWarn("stop: %v", err)
	}
	return true
}

func (r *repl) notices(events <-chan notebook.Event) {
	for ev := range events {
		if ev.Type != notebook.Notified {
			continue
		}
		switch ev.Level {
		case "error":
			internal.PrintError(ev.Text)
		case "warning":
			internal.PrintWarning(ev.Text)
		default:
			internal.PrintSuccess(ev.Text)
		}
	}
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	// one read per request, so nothing else is reading stdin while a
	// statement runs and the host may be prompting
	reqs := make(chan struct{}, 1)
	lines := make(chan string)
	defer close(reqs)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for range reqs {
			if !scanner.Scan() {
				return
			}
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var buf strings.Builder
	for {
		if r.interactive {
			fmt.Fprint(r.out, promptFor(buf.Len() > 0))
		}
		reqs <- struct{}{}
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		}

		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			if quit := r.command(ctx, trimmed); quit {
				return nil
			}
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") {
			continue
		}

		stmts, err := splitStatements(strings.NewReader(buf.String()))
		buf.Reset()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			r.execute(ctx, stmt)
		}
	}
}

func promptFor(continuation bool) string {
	if continuation {
		return metaStyle.Render("   ...> ")
	}
	return queryStyle.Render("cellbook> ")
}

// execute fills the focused cell with stmt and runs it
func (r *repl) execute(ctx context.Context, stmt string) {
	if err := r.nb.WaitReady(ctx); err != nil {
		internal.PrintError(fmt.Sprintf("session unavailable: %v", err))
		return
	}
	// reuse the focused cell only while it is still empty
	id := r.nb.Focus()
	if c, err := r.nb.Cell(id); err != nil || strings.TrimSpace(c.Query) != "" {
		id = r.nb.AddCell(stmt)
	} else if err := r.nb.UpdateQuery(id, stmt); err != nil {
		id = r.nb.AddCell(stmt)
	}

	r.mu.Lock()
	r.running = id
	r.mu.Unlock()
	_, err := r.nb.RunAndAdvance(ctx, id)
	r.mu.Lock()
	r.running = ""
	r.mu.Unlock()
	if err != nil {
		internal.PrintError(err.Error())
		return
	}

	c, err := r.nb.Cell(id)
	if err != nil {
		return
	}
	if c.Status == notebook.Success {
		r.mu.Lock()
		r.last = id
		r.mu.Unlock()
	}
	fmt.Fprintln(r.out, renderCell(c, r.position(id)))
}

func (r *repl) position(id string) int {
	for i, c := range r.nb.Cells() {
		if c.ID == id {
			return i + 1
		}
	}
	return 0
}

// command handles a dot command and reports whether to exit
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".quit", ".exit":
		return true
	case ".cells":
		for i, c := range r.nb.Cells() {
			if strings.TrimSpace(c.Query) == "" {
				continue
			}
			fmt.Fprintln(r.out, renderCell(c, i+1))
		}
	case ".export":
		format := "csv"
		if len(fields) > 1 {
			format = fields[1]
		}
		r.mu.Lock()
		id := r.last
		r.mu.Unlock()
		if id == "" {
			internal.PrintWarning("no successful cell to export")
			return false
		}
		// the save dialog reads stdin; wait for its outcome before the
		// next line is read
		events, stop := r.nb.Subscribe(4)
		defer stop()
		if err := r.nb.Export(ctx, id, format); err != nil {
			internal.PrintError(err.Error())
			return false
		}
		if _, err := waitNotice(ctx, events); err != nil {
			internal.PrintError(err.Error())
		}
	case ".refresh":
		if err := r.nb.Refresh(ctx); err != nil {
			internal.PrintError(err.Error())
			return false
		}
		internal.PrintInfo("Reloading source file")
	case ".set":
		if len(fields) < 3 {
			internal.PrintWarning("usage: .set <key> <value>")
			return false
		}
		if err := r.nb.UpdateSetting(ctx, fields[1], strings.Join(fields[2:], " ")); err != nil {
			internal.PrintError(err.Error())
		}
	default:
		internal.PrintWarning(fmt.Sprintf("unknown command %s", fields[0]))
	}
	return false
}

func init() {
	rootCmd.AddCommand(openCmd)
}
