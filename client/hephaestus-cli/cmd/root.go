package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverURL is the base URL of the orchestrator service, shared by all
// subcommands.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "hephaestus-cli",
	Short: "A CLI client for the Hephaestus orchestration service",
	Long:  `A command-line interface for starting content-generation tasks, posting events and watching task progress.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8082", "base URL of the orchestrator service")
}
