package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/cmd/gtdctl/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "gtdctl",
		Short:         "Command-line companion for the GTD service",
		Long:          "Clarify the inbox, check GTD health and manage accounts, contexts and API tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Log debug output to stderr")

	rootCmd.AddCommand(commands.NewProcessCmd())
	rootCmd.AddCommand(commands.NewHealthCmd())
	rootCmd.AddCommand(commands.NewAccountsCmd())
	rootCmd.AddCommand(commands.NewContextsCmd())
	rootCmd.AddCommand(commands.NewTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
