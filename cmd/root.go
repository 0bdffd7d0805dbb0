package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/config"
)

var (
	verbose bool
	cfgFile string
	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"

	v   = config.New()
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cellbook",
	Short: "Run SQL notebooks against CSV and TSV files",
	Long: `cellbook loads a tabular file into an in-process SQL engine and lets you
run a sequence of query cells against it.

The file is loaded as the table "data". Queries may read other files with
read_csv('/absolute/path.csv'); you are asked before any such file is read.
COPY (...) TO 'name.csv' writes results to the output directory, or to an
s3://bucket/key destination when an object store is configured.

Quick Start:
  cellbook open sales.csv                          # Interactive notebook
  cellbook run sales.csv -e "SELECT count(*) FROM data"
  cellbook export sales.csv -e "SELECT * FROM data" --format md
  cellbook inspect sales.csv                       # Schema and sample rows`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level, err := internal.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		internal.SetLogLevel(level)
		if verbose || cfg.Verbose {
			internal.SetVerbose(true)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./cellbook.yaml or ~/.cellbook/cellbook.yaml)")
	rootCmd.PersistentFlags().String("output-dir", ".", "Directory for COPY ... TO exports")
	rootCmd.PersistentFlags().String("settings", config.DefaultSettingsPath(), "Persisted settings file")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")

	bindFlag("output_dir", "output-dir")
	bindFlag("settings_path", "settings")
	bindFlag("metrics_addr", "metrics-addr")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
