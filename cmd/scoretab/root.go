package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scoretab",
		Short: "Scoretab - score tables for verification competitions",
		Long: `Scoretab computes the official score tables of a software-verification
competition.

It reconciles verifier verdicts with witness-validation evidence, votes
witness classifications across validator pools, and aggregates the
adjusted results into ranked category and meta-category tables.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newClassifyCommand())
	cmd.AddCommand(newScoresCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
