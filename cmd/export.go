package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/export"
	"github.com/iksnae/cellbook/internal/host"
	"github.com/iksnae/cellbook/internal/notebook"
)

var (
	exportStatement string
	exportFormat    string
	exportOut       string
	exportTimeout   time.Duration
)

// outPrompter answers save prompts with a fixed location when one was given
type outPrompter struct {
	host.Prompter
	out string
}

func (p outPrompter) SaveLocation(ctx context.Context, defaultName, format string) (string, error) {
	if p.out != "" {
		return p.out, nil
	}
	return p.Prompter.SaveLocation(ctx, defaultName, format)
}

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the result of a query",
	Long: `Run one statement against a file and export its result (csv, json, jsonl,
yaml, md). Without --out you are asked where to save it; --out accepts a local
path or s3://bucket/key when an object store is configured.`,
	Example: `  cellbook export sales.csv -e "SELECT * FROM data WHERE amount > 100" --format json --out big.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := export.NewExporter(exportFormat); err != nil {
			return err
		}
		if exportStatement == "" {
			return fmt.Errorf("a statement is required (-e)")
		}

		prompter := outPrompter{Prompter: host.NewSurveyPrompter(), out: exportOut}
		a, err := startApp(cmd.Context(), cfg, args[0], prompter)
		if err != nil {
			return err
		}
		defer func() { reportDiagnostics(a.Close()) }()

		c, err := runStatement(cmd.Context(), a.nb, exportStatement)
		if err != nil {
			return err
		}
		if c.Status != notebook.Success {
			fmt.Fprintln(cmd.OutOrStdout(), renderCell(c, len(a.nb.Cells())))
			return fmt.Errorf("query failed: %s", c.Error)
		}

		events, stop := a.nb.Subscribe(8)
		defer stop()
		if err := a.nb.Export(cmd.Context(), c.ID, exportFormat); err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), exportTimeout)
		defer cancel()
		ev, err := waitNotice(ctx, events)
		if err != nil {
			return fmt.Errorf("no confirmation from host: %w", err)
		}
		switch ev.Level {
		case "error":
			return fmt.Errorf("%s", ev.Text)
		case "warning":
			internal.PrintWarning(ev.Text)
		default:
			internal.PrintSuccess(ev.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportStatement, "execute", "e", "", "Statement whose result is exported")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Export format (csv, json, jsonl, yaml, md)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Save location (skips the prompt)")
	exportCmd.Flags().DurationVar(&exportTimeout, "timeout", 5*time.Minute, "How long to wait for the save to finish")
}
