// Package report renders a run's results as CSV tables, a markdown/HTML
// report and terminal tables.
package report

import (
	"fmt"
	"strconv"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

// Table is a named header plus string rows, shared by every output format.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Output file names.
const (
	SeasonsFile     = "validated_seasons.csv"
	RelocationsFile = "relocation_summary.csv"
	StatisticsFile  = "statistical_results.csv"
	QualityFile     = "quality_report.csv"
	DiagnosticsFile = "diagnostics.csv"
	MarkdownFile    = "report.md"
	HTMLFile        = "report.html"
)

// SeasonsTable lists every validated record, excluded ones included.
func SeasonsTable(records []validate.Record) Table {
	t := Table{
		Name: SeasonsFile,
		Header: []string{"line", "raw_team_id", "year", "league", "wins", "losses", "games", "games_derived",
			"canonical_id", "city", "valid", "in_scope", "exclusion_reason", "win_pct"},
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Line),
			r.RawTeamID,
			fmtInt(r.Year),
			r.League,
			fmtInt(r.Wins),
			fmtInt(r.Losses),
			fmtInt(r.Games),
			strconv.FormatBool(r.GamesDerived),
			r.CanonicalID,
			r.City,
			strconv.FormatBool(r.Valid),
			strconv.FormatBool(r.InScope),
			string(r.Exclusion),
			fmtRate(r.WinPct),
		})
	}
	return t
}

// RelocationsTable has one row per relocation event with its verdict.
func RelocationsTable(results []compare.Result) Table {
	t := Table{
		Name: RelocationsFile,
		Header: []string{"canonical_id", "name", "from_city", "to_city", "relocation_year",
			"pre_seasons", "post_seasons", "pre_mean", "post_mean", "delta", "eligible", "verdict"},
	}
	for _, r := range results {
		t.Rows = append(t.Rows, []string{
			r.CanonicalID,
			r.LineageName,
			r.FromCity,
			r.ToCity,
			strconv.Itoa(r.RelocationYear),
			strconv.Itoa(r.PreSeasons),
			strconv.Itoa(r.PostSeasons),
			fmtRate(r.PreMean),
			fmtRate(r.PostMean),
			fmtSigned(r.Delta),
			strconv.FormatBool(r.Eligible),
			r.Verdict(),
		})
	}
	return t
}

// StatisticsTable has one row per eligible relocation.
func StatisticsTable(results []compare.Result) Table {
	t := Table{
		Name: StatisticsFile,
		Header: []string{"canonical_id", "relocation_year", "test", "test_statistic", "degrees_of_freedom",
			"p_value", "effect_size", "effect_magnitude", "note"},
	}
	for _, r := range results {
		if !r.Eligible {
			continue
		}
		t.Rows = append(t.Rows, []string{
			r.CanonicalID,
			strconv.Itoa(r.RelocationYear),
			string(r.Test),
			fmtFixed(r.TestStatistic, 3),
			fmtFixed(r.DegreesOfFreedom, 2),
			fmtP(r.PValue),
			fmtFixed(r.EffectSize, 3),
			string(r.EffectMagnitude),
			string(r.Note),
		})
	}
	return t
}

// QualityTable counts exclusions per rule followed by the totals.
func QualityTable(rep validate.Report) Table {
	t := Table{Name: QualityFile, Header: []string{"metric", "count", "pct_of_total"}}
	pct := func(n int) string {
		if rep.Total == 0 {
			return "0.0"
		}
		return fmt.Sprintf("%.1f", 100*float64(n)/float64(rep.Total))
	}
	for _, reason := range validate.Reasons {
		n := rep.Excluded[reason]
		t.Rows = append(t.Rows, []string{string(reason), strconv.Itoa(n), pct(n)})
	}
	t.Rows = append(t.Rows,
		[]string{"total_records", strconv.Itoa(rep.Total), pct(rep.Total)},
		[]string{"excluded", strconv.Itoa(rep.ExcludedTotal()), pct(rep.ExcludedTotal())},
		[]string{"in_scope", strconv.Itoa(rep.InScope), pct(rep.InScope)},
	)
	return t
}

// DiagnosticsTable lists data-quality warnings.
func DiagnosticsTable(diags []validate.Diagnostic) Table {
	t := Table{Name: DiagnosticsFile, Header: []string{"kind", "canonical_id", "year", "detail"}}
	for _, d := range diags {
		t.Rows = append(t.Rows, []string{string(d.Kind), d.CanonicalID, strconv.Itoa(d.Year), d.Detail})
	}
	return t
}

func fmtInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func fmtRate(p *float64) string {
	return fmtFixed(p, 3)
}

func fmtSigned(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%+.3f", *p)
}

func fmtFixed(p *float64, digits int) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', digits, 64)
}

func fmtP(p *float64) string {
	if p == nil {
		return ""
	}
	if *p < 0.0001 {
		return strconv.FormatFloat(*p, 'e', 2, 64)
	}
	return strconv.FormatFloat(*p, 'f', 4, 64)
}
