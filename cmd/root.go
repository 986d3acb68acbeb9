// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the sqlrun CLI.
// It implements subcommands for running SQL scripts, validating them, and
// managing the database connection, using the Cobra CLI framework. The
// package handles command parsing and provides a rich terminal UI with
// spinners and progress indicators.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "sqlrun",
	Short:         "Run SQL scripts against PostgreSQL with timeouts and exports",
	Long: `sqlrun executes SQL script files against a PostgreSQL database. Statements
run in script order with per-statement timeouts; schema changes autocommit,
data changes run in rollback-safe transactions, and query results stream to
csv, xlsx or parquet files without loading them into memory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("sqlrun %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}
