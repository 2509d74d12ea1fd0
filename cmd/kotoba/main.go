// Package main is the kotoba CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "/usr/local/etc/kotoba/config.yaml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "kotoba",
		Short: "Dictionary word search",
		Long: `kotoba finds vocabulary entries by exact match, edit distance and meaning.

A query is normalized, looked up exactly, matched by edit distance and, when enabled,
compared by embedding similarity under a deadline. Results from all methods are merged
into one ranked list.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "path to .env file (default: .env in current directory)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(initCmd(g))
	cmd.AddCommand(wordCmd(g))
	cmd.AddCommand(prefixCmd(g))
	cmd.AddCommand(serverCmd(g))
	cmd.AddCommand(statusCmd(g))
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kotoba version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
