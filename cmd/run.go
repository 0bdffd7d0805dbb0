package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/host"
	"github.com/iksnae/cellbook/internal/notebook"
)

var (
	runStatements  []string
	runQuiet       bool
	runAllowAccess bool
)

// runCmd executes statements non-interactively
var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run SQL statements against a file and print the results",
	Long: `Load a CSV or TSV file, run the setup cells, then run each -e statement in
order. The command fails if any cell ends in error.

External files read with read_csv('/abs/path') are only granted with
--allow-external or when the persisted setting allows them.`,
	Example: `  cellbook run sales.csv -e "SELECT region, sum(amount) FROM data GROUP BY 1"
  cellbook run sales.csv -e "COPY data TO 'copy.csv'" --output-dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := host.Deny
		if runAllowAccess {
			decision = host.Allow
		}

		a, err := startApp(cmd.Context(), cfg, args[0], &host.StaticPrompter{Decision: decision})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		if !runQuiet {
			for i, c := range a.nb.Cells() {
				fmt.Fprintln(out, renderCell(c, i+1))
				if c.Status == notebook.Error {
					failed++
				}
			}
		}

		offset := len(a.nb.Cells())
		for i, stmt := range runStatements {
			c, err := runStatement(cmd.Context(), a.nb, stmt)
			if err != nil {
				reportDiagnostics(a.Close())
				return err
			}
			fmt.Fprintln(out, renderCell(c, offset+i+1))
			if c.Status == notebook.Error {
				failed++
			}
		}

		reportDiagnostics(a.Close())
		if failed > 0 {
			return fmt.Errorf("%d cell(s) failed", failed)
		}
		return nil
	},
}

// runStatement appends a cell, runs it and returns the outcome
func runStatement(ctx context.Context, nb *notebook.Notebook, stmt string) (notebook.Cell, error) {
	id := nb.AddCell(stmt)
	if err := nb.Run(ctx, id); err != nil {
		return notebook.Cell{}, fmt.Errorf("run %q: %w", stmt, err)
	}
	return nb.Cell(id)
}

// splitStatements splits a script on semicolons outside quotes
func splitStatements(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var (
		stmts []string
		cur   strings.Builder
		quote rune
	)
	for _, ch := range string(data) {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s+";")
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(ch)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	internal.LogDebug("split %d statement(s)", len(stmts))
	return stmts, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVarP(&runStatements, "execute", "e", nil, "Statement to run (repeatable)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print the setup cells")
	runCmd.Flags().BoolVar(&runAllowAccess, "allow-external", false, "Grant reads of files outside the loaded one without asking")
}
