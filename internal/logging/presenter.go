// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	"github.com/pterm/pterm"

	"sqlrun/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// RenderFailure prints a failure to the terminal with a hint matched to its
// category. Credentials in the message are masked first.
func RenderFailure(context string, err error) {
	if err == nil {
		return
	}
	pterm.Error.Println(PresentError(context, err))

	switch errors.KindOf(err) {
	case errors.ConnectFailed:
		pterm.Info.Println("Check that the database is reachable and the connection string is correct.")
		pterm.Info.Println("Run 'sqlrun connect' to store a new connection string.")
	case errors.ParseFailed:
		pterm.Info.Println("Check the script for unterminated strings, comments or dollar-quoted blocks.")
	case errors.StatementTimeout:
		pterm.Info.Println("Increase the timeout with --timeout or a per-script override in the config file.")
	case errors.OutputFailed:
		pterm.Info.Println("Check that the output directory exists and has free space.")
	}
}
