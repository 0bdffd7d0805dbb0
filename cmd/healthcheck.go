package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal/destination"
	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/settings"
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that cellbook can run queries and write exports",
	Long: `Check the health of cellbook by verifying:
  • The SQL engine can be instantiated and answers a query
  • The settings file can be read
  • The output directory is writable
  • The object store configuration (when present)

This command is useful for debugging environment issues, especially in CI/CD.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 cellbook Health Check"))
		fmt.Fprintln(out)

		failed := 0

		// Step 1: engine
		fmt.Fprintln(out, infoStyle.Render("Step 1: Starting SQL engine..."))
		if err := checkEngine(cmd.Context()); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Engine unavailable:"), err)
			failed++
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Engine answered SELECT 1"))
		}
		fmt.Fprintln(out)

		// Step 2: settings
		fmt.Fprintln(out, infoStyle.Render("Step 2: Reading settings..."))
		store := settings.NewStore(cfg.SettingsPath)
		cur, err := store.Load()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to read settings:"), err)
			failed++
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Settings readable"))
			if verbose {
				fmt.Fprintf(out, "   File: %s\n", store.Path())
				fmt.Fprintf(out, "   External file reads: %v\n", cur.AllowExternalFileReads)
				fmt.Fprintf(out, "   Preview rows: %d\n", cur.PreviewRowLimit)
			}
		}
		fmt.Fprintln(out)

		// Step 3: output directory
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking output directory..."))
		if err := checkWritable(cfg.OutputDir); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Output directory not writable:"), err)
			failed++
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Output directory writable"))
			if verbose {
				fmt.Fprintf(out, "   Directory: %s\n", cfg.OutputDir)
			}
		}
		fmt.Fprintln(out)

		// Step 4: object store
		fmt.Fprintln(out, infoStyle.Render("Step 4: Checking object store..."))
		checkObjectStore(out, &failed)
		fmt.Fprintln(out)

		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		if failed > 0 {
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("❌ Health check failed (%d problem(s))", failed)))
			return fmt.Errorf("health check failed")
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	},
}

func checkEngine(ctx context.Context) error {
	eng, err := engine.NewSQLiteFactory()(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Query(ctx, "SELECT 1 AS ok")
	if err != nil {
		return err
	}
	if len(res.Rows) != 1 {
		return fmt.Errorf("unexpected result: %d rows", len(res.Rows))
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".cellbook-healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func checkObjectStore(out io.Writer, failed *int) {
	if !cfg.Minio.Enabled() {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No object store configured (s3:// exports unavailable)"))
		return
	}
	if _, err := destination.NewMinioStore(cfg.Minio.Store()); err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Object store misconfigured:"), err)
		*failed++
		return
	}
	fmt.Fprintln(out, successStyle.Render("✅ Object store configured"))
	if verbose {
		fmt.Fprintf(out, "   Endpoint: %s\n", cfg.Minio.Endpoint)
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
