// Package main is the entry point for the sqlrun CLI application.
// It executes SQL scripts against PostgreSQL with per-statement timeouts
// and streaming result exports.
package main

import (
	"sqlrun/cli/cmd"
)

func main() {
	cmd.Execute()
}
