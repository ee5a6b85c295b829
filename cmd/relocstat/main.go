package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/relocstat/internal/config"
	"github.com/TobiSchelling/relocstat/internal/database"
	"github.com/TobiSchelling/relocstat/internal/lineage"
	"github.com/TobiSchelling/relocstat/internal/pipeline"
	"github.com/TobiSchelling/relocstat/internal/report"
	"github.com/TobiSchelling/relocstat/internal/server"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

// Input overrides shared by lineages, validate and run.
var (
	seasonsPath  string
	lineagesPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if pipeline.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "relocstat",
	Short:   "Franchise relocation performance analysis",
	Long:    "relocstat resolves franchise lineages, validates season records and tests whether relocations changed winning percentage.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			setupLogging(slog.LevelInfo)
			return nil
		}

		var err error
		path, resolveErr := config.ResolveConfigPath(configPath)
		switch {
		case resolveErr == nil:
			cfg, err = config.Load(path)
		case configPath == "":
			// No file anywhere: run on built-in defaults.
			cfg, err = config.Default()
		default:
			return resolveErr
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level, err := cfg.LogLevel()
		if err != nil {
			return err
		}
		if verbose {
			level = slog.LevelDebug
		}
		setupLogging(level)
		slog.Debug("config loaded", "path", path, "lineages", cfg.Input.Lineages, "seasons", cfg.Input.Seasons)

		if seasonsPath != "" {
			cfg.Input.Seasons = seasonsPath
		}
		if lineagesPath != "" {
			cfg.Input.Lineages = lineagesPath
		}
		return nil
	},
	SilenceUsage: true,
}

func setupLogging(level slog.Level) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	for _, c := range []*cobra.Command{lineagesCmd, validateCmd, runCmd} {
		c.Flags().StringVar(&lineagesPath, "lineages", "", "Lineage mapping file (.yaml or .csv)")
	}
	for _, c := range []*cobra.Command{validateCmd, runCmd} {
		c.Flags().StringVar(&seasonsPath, "seasons", "", "Season records CSV")
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(lineagesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("relocstat", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/relocstat/",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		files := []struct {
			name string
			data []byte
		}{
			{"config.yaml", config.DefaultConfigYAML},
			{"lineages.yaml", lineage.DefaultLineagesYAML},
		}
		for _, f := range files {
			target := filepath.Join(config.ConfigDir(), f.name)
			if _, err := os.Stat(target); err == nil {
				fmt.Printf("Already exists: %s\n", target)
				continue
			}
			if err := os.WriteFile(target, f.data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", f.name, err)
			}
			fmt.Printf("Created: %s\n", target)
		}

		fmt.Println("Set input.seasons to your season records file.")
		fmt.Println("Set input.lineages to lineages.yaml to use an edited mapping.")
		return nil
	},
}

// --- lineages command ---

var lineagesCmd = &cobra.Command{
	Use:   "lineages",
	Short: "Verify the lineage mapping and list its relocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := pipeline.LoadLineages(cfg)
		if err != nil {
			return err
		}

		segments := report.Table{Header: []string{"canonical_id", "name", "raw_team_id", "city", "start_year", "end_year", "defunct"}}
		for _, l := range table.Lineages() {
			for _, s := range l.Segments {
				end := "open"
				if !s.Open() {
					end = strconv.Itoa(*s.End)
				}
				segments.Rows = append(segments.Rows, []string{
					l.CanonicalID, l.Name, s.RawTeamID, s.City, strconv.Itoa(s.Start), end, strconv.FormatBool(l.Defunct),
				})
			}
		}

		events := report.Table{Header: []string{"canonical_id", "from_city", "to_city", "relocation_year"}}
		for _, e := range table.Events() {
			events.Rows = append(events.Rows, []string{e.CanonicalID, e.FromCity, e.ToCity, strconv.Itoa(e.Year)})
		}

		fmt.Printf("Lineage mapping %s: %d lineages\n\n", table.Version(), len(table.Lineages()))
		report.Render(os.Stdout, segments)
		fmt.Printf("\nRelocations (%d):\n", len(events.Rows))
		report.Render(os.Stdout, events)
		return nil
	},
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Resolve and validate season records; print the quality report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := pipeline.New(cfg, nil).Validate(ctx)
		printSteps(result)
		if err != nil {
			return err
		}

		fmt.Println("\nData quality:")
		report.Render(os.Stdout, report.QualityTable(result.Report))

		counts := validate.CountByKind(result.Report.Diagnostics)
		if len(counts) > 0 {
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			warnings := report.Table{Header: []string{"warning", "count"}}
			for _, k := range kinds {
				warnings.Rows = append(warnings.Rows, []string{k, strconv.Itoa(counts[validate.DiagnosticKind(k)])})
			}
			fmt.Println("\nWarnings:")
			report.Render(os.Stdout, warnings)
		}
		return nil
	},
}

// --- run command ---

var (
	dryRun     bool
	outDir     string
	minSeasons int
	workers    int
	testMethod string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full analysis: resolve -> validate -> partition -> compare",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outDir != "" {
			cfg.Output.Dir = outDir
		}
		if cmd.Flags().Changed("min-seasons") {
			cfg.Analysis.MinSeasons = minSeasons
		}
		if cmd.Flags().Changed("workers") {
			cfg.Analysis.Workers = workers
		}
		if testMethod != "" {
			cfg.Analysis.Test = testMethod
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var db *database.DB
		if cfg.Output.SQLite && !dryRun {
			var err error
			db, err = openDB()
			if err != nil {
				return err
			}
			defer db.Close()
		}

		pipe := pipeline.New(cfg, db)
		var (
			result *pipeline.Result
			err    error
		)
		if dryRun {
			result, err = pipe.DryRun(ctx)
		} else {
			result, err = pipe.Run(ctx)
		}
		printSteps(result)
		if err != nil {
			return err
		}

		fmt.Println()
		report.Render(os.Stdout, report.Project(report.RelocationsTable(result.Results),
			"canonical_id", "from_city", "to_city", "relocation_year", "pre_seasons", "post_seasons",
			"pre_mean", "post_mean", "delta", "verdict"))
		fmt.Println()
		report.RenderSummary(os.Stdout, result.Summary)

		if dryRun {
			return nil
		}
		fmt.Printf("\nRun %s complete. %d files written to %s\n", result.RunID, len(result.Files), cfg.Output.Dir)
		if result.DBPath != "" {
			fmt.Printf("Archived to %s\n", result.DBPath)
		}
		if result.Metrics != "" {
			fmt.Printf("Metrics written to %s\n", result.Metrics)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every stage but write nothing")
	runCmd.Flags().StringVar(&outDir, "out", "", "Output directory")
	runCmd.Flags().IntVar(&minSeasons, "min-seasons", 0, "Seasons required on each side of a relocation")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent lineages")
	runCmd.Flags().StringVar(&testMethod, "test", "", "Significance test: welch or student")
}

func printSteps(result *pipeline.Result) {
	if result == nil {
		return
	}
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/4: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run stored in the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := pipeline.DefaultDBPath(cfg)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			fmt.Println("No archive yet. Run 'relocstat run' first.")
			return nil
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.LastRun()
		if err != nil {
			return fmt.Errorf("reading last run: %w", err)
		}
		if run == nil {
			fmt.Println("Archive is empty.")
			return nil
		}
		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Last run: %s\n", run.ID)
		fmt.Printf("  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Seasons file: %s\n", run.SeasonsPath)
		fmt.Printf("  Lineage mapping: %s\n", run.LineagesVersion)
		fmt.Printf("  Test: %s, min seasons %d, modern era from %d\n", run.TestMethod, run.MinSeasons, run.ModernEraStart)
		fmt.Println("\nRecords:")
		fmt.Printf("  Total: %d\n", stats.Seasons)
		fmt.Printf("  In scope: %d\n", stats.InScope)
		fmt.Printf("  Warnings: %d\n", stats.Diagnostics)
		fmt.Println("\nRelocations:")
		fmt.Printf("  Total: %d\n", stats.Relocations)
		fmt.Printf("  Eligible: %d\n", stats.Eligible)

		relocations, err := db.GetRelocations()
		if err != nil {
			return err
		}
		t := report.Table{Header: []string{"canonical_id", "from_city", "to_city", "year", "delta", "p_value", "verdict"}}
		for _, r := range relocations {
			t.Rows = append(t.Rows, []string{
				r.CanonicalID, r.FromCity, r.ToCity, strconv.Itoa(r.RelocationYear),
				optFloat(r.Delta, "%+.3f"), optFloat(r.PValue, "%.4f"), r.Verdict,
			})
		}
		fmt.Println()
		report.Render(os.Stdout, t)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse the archived run in a local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg.Output.Dir, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func optFloat(p *float64, format string) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf(format, *p)
}

func openDB() (*database.DB, error) {
	return database.Open(pipeline.DefaultDBPath(cfg))
}
