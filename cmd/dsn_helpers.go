// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"os"
	"strings"

	"sqlrun/cli/internal/keychain"
)

// resolveRawDSN finds the database connection string, preferring environment
// variables over the OS keychain. Returns the raw string and where it came
// from.
func resolveRawDSN() (raw, source string, err error) {
	if env := strings.TrimSpace(os.Getenv("SQLRUN_DSN")); env != "" {
		return env, "SQLRUN_DSN environment variable", nil
	}
	if env := strings.TrimSpace(os.Getenv("DATABASE_URL")); env != "" {
		return env, "DATABASE_URL environment variable", nil
	}
	km, err := keychain.GetManager()
	if err == nil {
		if v, err := km.LoadDBDSN(); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "OS keychain", nil
		}
	}
	return "", "", errors.New("no database connection configured; run 'sqlrun connect' or set SQLRUN_DSN")
}
