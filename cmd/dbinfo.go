// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"sqlrun/cli/internal/dsn"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd represents the dbinfo command for displaying database connection information.
// It shows the current database connection string with the password masked for security.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show current database connection string",
	Long: `The dbinfo command displays the currently configured database connection string (DSN)
with the password masked for security. This helps verify which database you're connected to
without exposing sensitive credentials.

The password in the DSN will be replaced with *** for security.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		raw, source, err := resolveRawDSN()
		if err != nil {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: sqlrun connect")
			return nil
		}

		info, err := dsn.Parse(raw)
		if err != nil {
			pterm.Println("❌ Stored connection string is invalid")
			pterm.Println("   Please run: sqlrun connect")
			return err
		}

		pterm.Println("Using DSN from " + source)
		pterm.Println()
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(info.Redacted())
		pterm.Println()
		pterm.Println("To update this connection, run: sqlrun connect")
		pterm.Println()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
