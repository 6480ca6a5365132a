package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the path to a YAML run configuration, shared by run and
// validate.
var configPath string

// rootCmd is the top-level cobra command for qpixsimctl.
var rootCmd = &cobra.Command{
	Use:   "qpixsimctl",
	Short: "CLI driver for the qpixsim mesh simulator",
	Long:  "qpixsimctl loads a run configuration and drives a qpixsim simulation to completion, or validates a configuration file without running it.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to run configuration file (YAML); defaults to built-in defaults if empty")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
