// Package cli implements chainrouterctl using Cobra. Grounded on
// Tutu-Engine's internal/cli package (package-level rootCmd, each subcommand
// self-registering via init(), SilenceUsage/SilenceErrors, Execute(version)
// entry point) for structure, and tokenhub's cmd/tokenhubctl for what an
// operator actually wants to see out of each subcommand.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chainrouterctl",
	Short:         "chainrouterctl — operate the chainrouter budget/failure-aware model router",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from cmd/chainrouterctl/main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
