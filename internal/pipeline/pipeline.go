package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/config"
	"github.com/TobiSchelling/relocstat/internal/database"
	"github.com/TobiSchelling/relocstat/internal/lineage"
	"github.com/TobiSchelling/relocstat/internal/metrics"
	"github.com/TobiSchelling/relocstat/internal/report"
	"github.com/TobiSchelling/relocstat/internal/season"
	"github.com/TobiSchelling/relocstat/internal/validate"
	"github.com/TobiSchelling/relocstat/internal/window"
)

const totalSteps = 4

// Stage names, in execution order.
const (
	StageResolve   = "Resolve"
	StageValidate  = "Validate"
	StagePartition = "Partition"
	StageCompare   = "Compare"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name     string
	Summary  string
	Duration time.Duration
	Err      error
}

// Result holds everything a run produced. Later fields stay empty when the
// run stopped early.
type Result struct {
	RunID      string
	Method     compare.Method
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult

	Table   *lineage.Table
	Raw     []season.Record
	Records []validate.Record
	Report  validate.Report
	Pairs   []window.Pair
	Results []compare.Result
	Summary compare.Summary

	Files   []string
	DBPath  string
	Metrics string
}

// Pipeline orchestrates the four analysis stages and writes outputs.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	metrics *metrics.Recorder
}

// New creates a pipeline. db may be nil, in which case no archive is written.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, metrics: metrics.NewRecorder()}
}

// IsConfigurationError reports whether err stopped the run before any record
// was processed: a bad lineage mapping, a malformed seasons header or an
// invalid configuration.
func IsConfigurationError(err error) bool {
	var cfgErr *lineage.ConfigError
	var schemaErr *season.SchemaError
	var invalid *InvalidConfigError
	return errors.As(err, &cfgErr) || errors.As(err, &schemaErr) || errors.As(err, &invalid)
}

// InvalidConfigError wraps a failed config validation.
type InvalidConfigError struct {
	Err error
}

func (e *InvalidConfigError) Error() string { return "invalid configuration: " + e.Err.Error() }
func (e *InvalidConfigError) Unwrap() error { return e.Err }

// Run executes all stages and writes the output tables, report, archive and
// metrics.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r, err := p.analyze(ctx, totalSteps)
	if err != nil {
		return r, err
	}
	if err := p.write(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

// DryRun executes all stages but writes nothing.
func (p *Pipeline) DryRun(ctx context.Context) (*Result, error) {
	r, err := p.analyze(ctx, totalSteps)
	for i := range r.Steps {
		r.Steps[i].Summary = "[dry-run] " + r.Steps[i].Summary
	}
	return r, err
}

// Validate runs resolution and validation only.
func (p *Pipeline) Validate(ctx context.Context) (*Result, error) {
	return p.analyze(ctx, 2)
}

// LoadLineages builds the lineage table from the configured artifact, or the
// bundled default when none is configured.
func LoadLineages(cfg *config.Config) (*lineage.Table, error) {
	if cfg.Input.Lineages == "" {
		return lineage.LoadDefault(cfg.Analysis.ModernEraStart)
	}
	return lineage.Load(cfg.Input.Lineages, cfg.Analysis.ModernEraStart)
}

func (p *Pipeline) analyze(ctx context.Context, through int) (*Result, error) {
	r := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := slog.With("run_id", r.RunID)

	if err := p.cfg.Validate(); err != nil {
		return r, &InvalidConfigError{Err: err}
	}
	method, err := compare.ParseMethod(p.cfg.Analysis.Test)
	if err != nil {
		return r, &InvalidConfigError{Err: err}
	}
	r.Method = method
	partitioner, err := window.New(p.cfg.Analysis.MinSeasons, p.cfg.Analysis.Workers)
	if err != nil {
		return r, &InvalidConfigError{Err: err}
	}

	steps := []struct {
		name string
		msg  string
		run  func() (string, error)
	}{
		{StageResolve, "Resolving lineages and reading seasons...", func() (string, error) {
			return p.resolve(r)
		}},
		{StageValidate, "Validating season records...", func() (string, error) {
			return p.validate(r)
		}},
		{StagePartition, "Partitioning relocation windows...", func() (string, error) {
			pairs, err := partitioner.PartitionAll(ctx, r.Table, r.Records)
			if err != nil {
				return "", err
			}
			r.Pairs = pairs
			eligible := 0
			for _, pair := range pairs {
				if pair.Eligible {
					eligible++
				}
			}
			return fmt.Sprintf("%d relocations, %d with at least %d seasons per side",
				len(pairs), eligible, partitioner.MinSeasons()), nil
		}},
		{StageCompare, "Comparing pre/post windows...", func() (string, error) {
			engine := compare.NewEngine(method, p.cfg.Analysis.Workers)
			results, err := engine.CompareAll(ctx, r.Pairs)
			if err != nil {
				return "", err
			}
			r.Results = results
			r.Summary = compare.Summarize(results)
			p.metrics.ObserveResults(results)
			return fmt.Sprintf("%d compared with %s test: %d improved, %d declined, %d significant",
				r.Summary.Eligible, method, r.Summary.Improved, r.Summary.Declined, r.Summary.Significant), nil
		}},
	}

	for i, s := range steps[:through] {
		log.Info(fmt.Sprintf("Step %d/%d: %s", i+1, totalSteps, s.msg))
		start := time.Now()
		summary, err := s.run()
		step := StepResult{Name: s.name, Summary: summary, Duration: time.Since(start), Err: err}
		r.Steps = append(r.Steps, step)
		p.metrics.ObserveStage(s.name, step.Duration)
		if err != nil {
			r.FinishedAt = time.Now()
			return r, fmt.Errorf("%s: %w", s.name, err)
		}
		log.Debug("step complete", "step", s.name, "summary", summary, "duration", step.Duration)
	}

	r.FinishedAt = time.Now()
	return r, nil
}

func (p *Pipeline) resolve(r *Result) (string, error) {
	table, err := LoadLineages(p.cfg)
	if err != nil {
		return "", err
	}
	r.Table = table

	raw, err := season.Load(p.cfg.Input.Seasons)
	if err != nil {
		return "", err
	}
	r.Raw = raw

	return fmt.Sprintf("%d lineages (%d relocations) from mapping %s; %d season records read",
		len(table.Lineages()), len(table.Events()), table.Version(), len(raw)), nil
}

func (p *Pipeline) validate(r *Result) (string, error) {
	records, rep := validate.New(r.Table).Validate(r.Raw)
	if len(records) != len(r.Raw) {
		return "", fmt.Errorf("validation emitted %d records for %d inputs", len(records), len(r.Raw))
	}
	r.Records = records
	r.Report = rep
	p.metrics.ObserveValidation(rep)

	for kind, n := range validate.CountByKind(rep.Diagnostics) {
		slog.Warn("data quality", "kind", kind, "count", n, "run_id", r.RunID)
	}
	return fmt.Sprintf("%d of %d records in scope (%.1f%% retained), %d excluded, %d warnings",
		rep.InScope, rep.Total, 100*rep.Retention(), rep.ExcludedTotal(), len(rep.Diagnostics)), nil
}

func (p *Pipeline) write(ctx context.Context, r *Result) error {
	lineagesVersion := ""
	if r.Table != nil {
		lineagesVersion = r.Table.Version()
	}

	doc := report.Document{
		RunID:           r.RunID,
		GeneratedAt:     r.FinishedAt,
		SeasonsPath:     p.cfg.Input.Seasons,
		LineagesVersion: lineagesVersion,
		Method:          r.Method,
		MinSeasons:      p.cfg.Analysis.MinSeasons,
		ModernEraStart:  p.cfg.Analysis.ModernEraStart,
		Records:         r.Records,
		Report:          r.Report,
		Results:         r.Results,
		Summary:         r.Summary,
	}
	files, err := report.WriteAll(p.cfg.Output.Dir, doc, p.cfg.Output.HTMLReport)
	r.Files = files
	if err != nil {
		return fmt.Errorf("writing outputs: %w", err)
	}
	slog.Info("outputs written", "dir", p.cfg.Output.Dir, "files", len(files), "run_id", r.RunID)

	if p.db != nil {
		archive := database.Archive{
			Run: database.Run{
				ID:              r.RunID,
				StartedAt:       r.StartedAt,
				FinishedAt:      r.FinishedAt,
				SeasonsPath:     p.cfg.Input.Seasons,
				LineagesVersion: lineagesVersion,
				TestMethod:      string(r.Method),
				MinSeasons:      p.cfg.Analysis.MinSeasons,
				ModernEraStart:  p.cfg.Analysis.ModernEraStart,
				TotalRecords:    r.Report.Total,
				InScope:         r.Report.InScope,
				Relocations:     r.Summary.Relocations,
				Eligible:        r.Summary.Eligible,
			},
			Records: r.Records,
			Report:  r.Report,
			Results: r.Results,
		}
		if err := p.db.ArchiveRun(ctx, archive); err != nil {
			return fmt.Errorf("archiving run: %w", err)
		}
		r.DBPath = p.db.Path()
	}

	if path := p.cfg.Metrics.Textfile; path != "" {
		p.metrics.MarkRun(r.RunID, lineagesVersion, string(r.Method), r.FinishedAt)
		if err := p.metrics.WriteTextfile(path); err != nil {
			return err
		}
		r.Metrics = path
	}
	return nil
}

// DefaultDBPath is where the archive lives for cfg.
func DefaultDBPath(cfg *config.Config) string {
	return filepath.Join(cfg.GetDataDir(), database.FileName)
}
