// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"sqlrun/cli/internal/config"
	"sqlrun/cli/internal/dsn"
	"sqlrun/cli/internal/engine"
	"sqlrun/cli/internal/logging"
	"sqlrun/cli/internal/output"
	"sqlrun/cli/internal/progress"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	checkParseOnly bool
)

// checkCmd validates scripts without committing data changes or writing
// output files. Queries execute and their results are consumed and counted,
// then the transaction rolls back. Schema statements still autocommit; a
// script that creates tables leaves them behind.
var checkCmd = &cobra.Command{
	Use:   "check <script.sql|directory> [more...]",
	Short: "Validate SQL scripts without committing or writing files",
	Long: `The check command parses scripts and, unless --parse-only is set, executes
them against the database in validation mode: query results are consumed and
counted but not written to files, and data changes roll back at the end of
each script instead of committing.

Schema statements (CREATE, DROP, DO, ...) autocommit and are not rolled back;
avoid check on scripts whose schema changes must not persist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scripts, err := collectScripts(args)
		if err != nil {
			return err
		}

		if checkParseOnly {
			for _, sc := range scripts {
				pterm.Success.Printf("%s: %d statements\n", sc.Source, len(sc.Statements))
				for _, st := range sc.Statements {
					pterm.Printf("  [%d] %s\n", st.Index+1, st.Kind)
				}
			}
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			pterm.Warning.Println("Could not read config file, using defaults: " + err.Error())
		}

		rawDSN, _, err := resolveRawDSN()
		if err != nil {
			return err
		}
		normalizedDSN, err := dsn.Resolve(rawDSN)
		if err != nil {
			logging.RenderFailure("invalid connection string", err)
			return err
		}

		spec := output.Spec{
			Format:    output.FormatCSV,
			BatchSize: cfg.BatchSize,
			ChunkSize: cfg.ChunkSize,
			Timeout:   cfg.Timeout(),
			Workers:   cfg.Workers,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		pool, err := engine.Connect(ctx, normalizedDSN, spec)
		if err != nil {
			logging.RenderFailure("connect", err)
			return err
		}
		defer pool.Close()

		reporter := progress.NewReporter(256)
		runner := &engine.Runner{
			Source:    &engine.PoolSource{Pool: pool},
			Canceler:  &engine.PoolCanceler{Pool: pool},
			Spec:      spec,
			Reporter:  reporter,
			DrainOnly: true,
			NoCommit:  true,
			Timeouts:  cfg.TimeoutFor,
		}

		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			for ev := range reporter.Events() {
				renderEvent(ev)
			}
		}()

		reports := runner.RunAll(ctx, scripts)
		reporter.Close()
		<-consumerDone

		failed := 0
		for _, rep := range reports {
			failed += rep.Failed() + rep.TimedOut()
			if rep.Fatal != "" {
				failed++
				pterm.Error.Printf("%s: %s\n", rep.Script, logging.Mask(rep.Fatal))
			}
		}
		if failed > 0 {
			return fmt.Errorf("check found %d failing statements", failed)
		}
		pterm.Success.Println("All scripts validated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkParseOnly, "parse-only", false, "Only parse and classify, do not touch the database")
}
