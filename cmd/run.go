// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sqlrun/cli/internal/config"
	"sqlrun/cli/internal/dsn"
	"sqlrun/cli/internal/engine"
	"sqlrun/cli/internal/logging"
	"sqlrun/cli/internal/output"
	"sqlrun/cli/internal/progress"
	"sqlrun/cli/internal/script"
	"sqlrun/cli/internal/xdg"

	"atomicgo.dev/cursor"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runOutputDir string
	runFormat    string
	runTimeout   int
	runWorkers   int
	runBatch     int
	runChunk     int
	runFailFast  bool
	runStartDate string
	runEndDate   string
	runJSON      bool
	verboseRun   bool
)

// runCmd represents the run command for executing SQL script files.
// It resolves the database connection, executes each script on its own
// connection with per-statement timeouts, and streams query results to
// output files in the configured format.
var runCmd = &cobra.Command{
	Use:   "run <script.sql|directory> [more...]",
	Short: "Execute SQL scripts and export query results",
	Long: `The run command executes one or more SQL script files against the configured
PostgreSQL database. Directories are expanded to their .sql files in name order.

Statements execute in script order. Schema statements (CREATE, ALTER, DROP, DO, ...)
run in autocommit mode; data statements run inside transactions that roll back
automatically when the server rejects a statement. Each statement is raced against
a deadline; on expiry the server-side query is cancelled, then terminated, and the
run continues on a fresh connection.

Query results stream to files in chunks, so arbitrarily large result sets never
accumulate in memory. Scripts may reference {{start_date}} and {{end_date}}
placeholders, filled from --start-date and --end-date.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verboseRun {
			os.Setenv("SQLRUN_VERBOSE", "1")
		}

		cfg, err := config.Load()
		if err != nil {
			pterm.Warning.Println("Could not read config file, using defaults: " + err.Error())
		}
		applyRunFlags(&cfg)

		if err := validateDates(); err != nil {
			return err
		}

		scripts, err := collectScripts(args)
		if err != nil {
			return err
		}
		if runStartDate != "" || runEndDate != "" {
			for i, sc := range scripts {
				scripts[i] = sc.ApplyDates(runStartDate, runEndDate)
			}
		}

		format, err := output.ParseFormat(cfg.Format)
		if err != nil {
			return err
		}
		spec := output.Spec{
			Dir:       cfg.OutputDir,
			Format:    format,
			BatchSize: cfg.BatchSize,
			ChunkSize: cfg.ChunkSize,
			Timeout:   cfg.Timeout(),
			Workers:   cfg.Workers,
		}
		if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", spec.Dir, err)
		}

		rawDSN, dsnSource, err := resolveRawDSN()
		if err != nil {
			return err
		}
		info, err := dsn.Parse(rawDSN)
		if err != nil {
			logging.RenderFailure("invalid connection string", err)
			return err
		}
		normalizedDSN := info.Normalize()

		pterm.Println()
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Database:   ") +
			pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(info.Database))
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Connection: ") +
			pterm.NewStyle(pterm.FgLightBlue).Sprint(info.Redacted()+"  ("+dsnSource+")"))
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Output:     ") +
			pterm.NewStyle(pterm.FgLightBlue).Sprintf("%s (%s)", spec.Dir, spec.Format))
		pterm.Println()

		// Ctrl-C cancels in-flight statements server-side before exiting.
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
			Source:   &engine.PoolSource{Pool: pool},
			Canceler: &engine.PoolCanceler{Pool: pool},
			Spec:     spec,
			Reporter: reporter,
			FailFast: cfg.FailFast,
			Timeouts: cfg.TimeoutFor,
		}

		cursor.Hide()
		defer cursor.Show()
		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			for ev := range reporter.Events() {
				renderEvent(ev)
			}
		}()

		startAt := time.Now()
		reports := runner.RunAll(ctx, scripts)
		reporter.Close()
		<-consumerDone

		saveLastReport(reports)

		if runJSON {
			return printJSONReports(reports)
		}
		renderSummary(reports, time.Since(startAt))

		for _, rep := range reports {
			if rep.Fatal != "" || rep.Failed() > 0 || rep.TimedOut() > 0 {
				return fmt.Errorf("run completed with failures")
			}
		}
		return nil
	},
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runOutputDir != "" {
		cfg.OutputDir = runOutputDir
	}
	if runFormat != "" {
		cfg.Format = runFormat
	}
	if runTimeout >= 0 {
		cfg.TimeoutSeconds = runTimeout
	}
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if runBatch > 0 {
		cfg.BatchSize = runBatch
	}
	if runChunk > 0 {
		cfg.ChunkSize = runChunk
	}
	if runFailFast {
		cfg.FailFast = true
	}
}

func validateDates() error {
	for _, d := range []string{runStartDate, runEndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD", d)
		}
	}
	return nil
}

// collectScripts expands the argument list into parsed scripts. Directory
// arguments contribute their .sql files in name order.
func collectScripts(args []string) ([]*script.Script, error) {
	var paths []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("script %s: %w", arg, err)
		}
		if st.IsDir() {
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, err
			}
			var found []string
			for _, e := range entries {
				if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
					found = append(found, filepath.Join(arg, e.Name()))
				}
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("no .sql files in %s", arg)
			}
			sort.Strings(found)
			paths = append(paths, found...)
			continue
		}
		paths = append(paths, arg)
	}

	scripts := make([]*script.Script, 0, len(paths))
	for _, p := range paths {
		sc, err := script.Load(p)
		if err != nil {
			return nil, err
		}
		if len(sc.Statements) == 0 {
			pterm.Warning.Printf("Skipping %s: no statements\n", p)
			continue
		}
		scripts = append(scripts, sc)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no executable statements found")
	}
	return scripts, nil
}

// renderEvent prints one completed statement with a status-colored prefix.
func renderEvent(ev progress.Event) {
	line := fmt.Sprintf("%s [%d/%d] %s %s",
		ev.Script, ev.Index, ev.Total, ev.Kind, ev.Elapsed.Round(time.Millisecond))
	if ev.Rows > 0 {
		line += fmt.Sprintf("  %d rows", ev.Rows)
	}
	switch ev.Status {
	case progress.StatusSuccess:
		pterm.Success.Println(line)
	case progress.StatusTimeout:
		pterm.Warning.Println(line + "  " + logging.Mask(ev.Detail))
	default:
		pterm.Error.Println(line + "  " + logging.Mask(ev.Detail))
	}
}

func renderSummary(reports []*engine.Report, total time.Duration) {
	pterm.Println()
	rows := pterm.TableData{
		{"Script", "Statements", "OK", "Failed", "Timeout", "Rows", "Duration"},
	}
	for _, rep := range reports {
		rows = append(rows, []string{
			filepath.Base(rep.Script),
			fmt.Sprintf("%d", len(rep.Results)),
			fmt.Sprintf("%d", rep.Succeeded()),
			fmt.Sprintf("%d", rep.Failed()),
			fmt.Sprintf("%d", rep.TimedOut()),
			fmt.Sprintf("%d", rep.TotalRows()),
			rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond).String(),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	for _, rep := range reports {
		if rep.Fatal != "" {
			pterm.Error.Printf("%s: %s\n", filepath.Base(rep.Script), logging.Mask(rep.Fatal))
		}
		if rep.LastOutputFile != "" {
			pterm.Info.Printf("%s → %s\n", filepath.Base(rep.Script), rep.LastOutputFile)
		}
	}
	pterm.Println()
	pterm.Printf("Total time: %s\n", total.Round(time.Millisecond))
}

// saveLastReport records the latest run's reports in the XDG state
// directory so a run's outcome can be inspected after the terminal output
// is gone. Best effort; a run never fails because its history could not
// be written.
func saveLastReport(reports []*engine.Report) {
	dir, err := xdg.StateDir()
	if err != nil {
		return
	}
	var entries []json.RawMessage
	for _, rep := range reports {
		b, err := rep.JSON()
		if err != nil {
			return
		}
		entries = append(entries, b)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "last_run.json"), data, 0o600)
}

func printJSONReports(reports []*engine.Report) error {
	fmt.Println("[")
	for i, rep := range reports {
		b, err := rep.JSON()
		if err != nil {
			return err
		}
		if i < len(reports)-1 {
			fmt.Println(string(b) + ",")
		} else {
			fmt.Println(string(b))
		}
	}
	fmt.Println("]")
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "Directory for query result files")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "Result file format: csv, csv-native, xlsx, parquet")
	runCmd.Flags().IntVarP(&runTimeout, "timeout", "t", -1, "Per-statement timeout in seconds (0 disables)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "How many scripts run concurrently")
	runCmd.Flags().IntVar(&runBatch, "batch-size", 0, "Writer flush interval in rows")
	runCmd.Flags().IntVar(&runChunk, "chunk-size", 0, "Result streaming chunk in rows")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop a script at its first failed statement")
	runCmd.Flags().StringVar(&runStartDate, "start-date", "", "Value for {{start_date}} placeholders (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runEndDate, "end-date", "", "Value for {{end_date}} placeholders (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print run reports as JSON instead of tables")
	runCmd.Flags().BoolVarP(&verboseRun, "verbose", "v", false, "Enable verbose debug output")
}
