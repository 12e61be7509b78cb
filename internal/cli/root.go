package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDirFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "erlgraph",
	Short: "Extract data-flow training records from Erlang source trees",
	Long: `erlgraph parses Erlang source files, groups multi-clause functions
into single units, derives a data-flow graph over their variable
occurrences, and emits one JSONL training record per function.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDirFlag, "root", "", "repository root to operate on (default is the working directory)")
}

// resolveRoot returns the directory the command operates on.
func resolveRoot() (string, error) {
	if rootDirFlag != "" {
		return rootDirFlag, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}
