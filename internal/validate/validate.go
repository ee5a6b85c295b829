// Package validate filters raw season records down to the in-scope set used
// for relocation analysis. Every input record yields exactly one output
// record; excluded records carry the first rule they failed.
package validate

import (
	"math"

	"github.com/TobiSchelling/relocstat/internal/lineage"
	"github.com/TobiSchelling/relocstat/internal/season"
)

// Reason is the code for the first validation rule a record failed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonMalformedRow   Reason = "malformed_row"
	ReasonMissingFields  Reason = "missing_fields"
	ReasonNegativeCounts Reason = "negative_counts"
	ReasonGamesMismatch  Reason = "games_mismatch"
	ReasonUnresolvedTeam Reason = "unresolved_team"
	ReasonDefunctLineage Reason = "defunct_lineage"
	ReasonPreModernEra   Reason = "pre_modern_era"
	ReasonZeroGames      Reason = "zero_games"
)

// Reasons lists every exclusion reason in rule order.
var Reasons = []Reason{
	ReasonMalformedRow,
	ReasonMissingFields,
	ReasonNegativeCounts,
	ReasonGamesMismatch,
	ReasonUnresolvedTeam,
	ReasonDefunctLineage,
	ReasonPreModernEra,
	ReasonZeroGames,
}

// Record is a raw season annotated with its resolution and verdict.
type Record struct {
	season.Record
	CanonicalID string
	City        string
	Valid       bool
	InScope     bool
	Exclusion   Reason
	WinPct      *float64
}

// Report summarises a validation pass.
type Report struct {
	Total       int
	Valid       int
	InScope     int
	Excluded    map[Reason]int
	Diagnostics []Diagnostic
}

// Retention returns the in-scope fraction of all records.
func (r Report) Retention() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.InScope) / float64(r.Total)
}

// ExcludedTotal returns the number of records with any exclusion reason.
func (r Report) ExcludedTotal() int {
	n := 0
	for _, c := range r.Excluded {
		n += c
	}
	return n
}

// Validator applies the filtering rules against a lineage table.
type Validator struct {
	table *lineage.Table
}

// New creates a Validator. Seasons before the table's modern-era start are
// out of scope.
func New(table *lineage.Table) *Validator {
	return &Validator{table: table}
}

// Validate annotates every record. It never fails on individual rows.
func (v *Validator) Validate(records []season.Record) ([]Record, Report) {
	out := make([]Record, len(records))
	report := Report{
		Total:    len(records),
		Excluded: make(map[Reason]int, len(Reasons)),
	}

	for i, raw := range records {
		rec := v.check(raw)
		out[i] = rec
		if rec.Valid {
			report.Valid++
		}
		if rec.InScope {
			report.InScope++
		} else {
			report.Excluded[rec.Exclusion]++
		}
	}

	report.Diagnostics = Diagnose(out, v.table)
	return out, report
}

func (v *Validator) check(raw season.Record) Record {
	rec := Record{Record: raw}

	if raw.RawTeamID != "" && raw.Year != nil {
		if res, ok := v.table.Resolve(raw.RawTeamID, *raw.Year); ok {
			rec.CanonicalID = res.CanonicalID
			rec.City = res.City
		}
	}

	switch {
	case raw.Malformed:
		rec.Exclusion = ReasonMalformedRow
		return rec
	case raw.RawTeamID == "" || raw.Year == nil || raw.Wins == nil || raw.Losses == nil || raw.Games == nil:
		rec.Exclusion = ReasonMissingFields
		return rec
	case *raw.Wins < 0 || *raw.Losses < 0:
		rec.Exclusion = ReasonNegativeCounts
		return rec
	case *raw.Games != *raw.Wins+*raw.Losses:
		rec.Exclusion = ReasonGamesMismatch
		return rec
	}

	rec.Valid = true
	if *raw.Games > 0 {
		pct := Round3(float64(*raw.Wins) / float64(*raw.Games))
		rec.WinPct = &pct
	}

	res, ok := v.table.Resolve(raw.RawTeamID, *raw.Year)
	switch {
	case !ok:
		rec.Exclusion = ReasonUnresolvedTeam
	case res.Defunct:
		rec.Exclusion = ReasonDefunctLineage
	case *raw.Year < v.table.ModernEraStart():
		rec.Exclusion = ReasonPreModernEra
	case *raw.Games == 0:
		rec.Exclusion = ReasonZeroGames
	default:
		rec.InScope = true
	}
	return rec
}

// Round3 rounds to three decimal places, ties to even.
func Round3(x float64) float64 {
	return math.RoundToEven(x*1000) / 1000
}
