package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/iksnae/cellbook/testutil"
)

// env is a throwaway settings file and output directory for one command run
type env struct {
	dir      string
	source   string
	settings string
	out      string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := testutil.CreateTempDir(t)
	chdir(t, dir)
	return &env{
		dir:      dir,
		source:   testutil.WriteFile(t, dir, "people.csv", []byte(testutil.PeopleCSV)),
		settings: filepath.Join(dir, "settings.yaml"),
		out:      filepath.Join(dir, "out"),
	}
}

// execute runs the root command with the env's paths and returns stdout
func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	args = append(args, "--settings", e.settings, "--output-dir", e.out)
	rootCmd.SetArgs(args)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), err
}

// resetFlags clears values left behind by earlier Execute calls
func resetFlags() {
	runStatements = nil
	runQuiet = false
	runAllowAccess = false
	exportStatement = ""
	exportFormat = "csv"
	exportOut = ""
	inspectFormat = "text"
	inspectSampleRows = 3
	cfgFile = ""
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantErr: false,
		},
		{
			name:    "help flag",
			args:    []string{"--help"},
			wantErr: false,
		},
		{
			name:    "unknown command",
			args:    []string{"nonexistent-command"},
			wantErr: true,
		},
		{
			name:    "missing config file",
			args:    []string{"settings", "--config", "/nonexistent/cellbook.yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("rootCmd.Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	cfgFile = ""
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"open", "run", "export", "inspect", "settings", "healthcheck"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s command not registered", name)
		}
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
