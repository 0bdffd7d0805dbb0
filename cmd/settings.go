package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/settings"
)

// settingsCmd shows and changes persisted host settings
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change persisted settings",
	Long: `Settings are stored as YAML at the --settings path (default
~/.cellbook/settings.yaml). Without a subcommand every setting is listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSettings(cmd, settings.Keys())
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one or all settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return printSettings(cmd, settings.Keys())
		}
		return printSettings(cmd, args)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Change a setting",
	Args:      cobra.ExactArgs(2),
	ValidArgs: settings.Keys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := settings.NewStore(cfg.SettingsPath)
		if err := store.Set(args[0], args[1]); err != nil {
			return err
		}
		internal.LogDebug("updated %s in %s", args[0], store.Path())
		internal.PrintSuccess(fmt.Sprintf("%s = %s", args[0], args[1]))
		return nil
	},
}

func printSettings(cmd *cobra.Command, keys []string) error {
	store := settings.NewStore(cfg.SettingsPath)
	out := cmd.OutOrStdout()
	for _, key := range keys {
		v, err := store.Get(key)
		if err != nil {
			return err
		}
		if len(keys) == 1 {
			fmt.Fprintln(out, v)
			continue
		}
		fmt.Fprintf(out, "%s %v\n", metaStyle.Render(fmt.Sprintf("%-24s", key)), v)
	}
	return nil
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
