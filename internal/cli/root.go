package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmprefetch",
		Short: "Prefetch rpm packages for hermetic builds",
		Long: `Rpmprefetch reads an rpms.lock.yaml lockfile, downloads every package
and source package it lists, verifies them, and turns the result into local
repositories that a build can install from without network access.

Supported lockfile formats:
  - redhat, version 1 (rpm-lockfile-prototype)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewFetchCmd())

	return rootCmd
}
