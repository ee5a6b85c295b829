package validate

import (
	"fmt"
	"sort"

	"github.com/TobiSchelling/relocstat/internal/lineage"
)

// DiagnosticKind classifies a data-quality warning.
type DiagnosticKind string

const (
	DiagDuplicateSeason DiagnosticKind = "duplicate_season"
	DiagYearGap         DiagnosticKind = "year_gap"
	DiagMissingBoundary DiagnosticKind = "missing_boundary_season"
	DiagExtremeRecord   DiagnosticKind = "extreme_record"
	DiagUnusualGames    DiagnosticKind = "unusual_game_count"
	DiagLeagueChange    DiagnosticKind = "league_change"
)

// Diagnostic is a warning about in-scope data. Diagnostics never exclude
// records.
type Diagnostic struct {
	Kind        DiagnosticKind
	CanonicalID string
	Year        int
	Detail      string
}

const (
	extremeLow  = 0.200
	extremeHigh = 0.800

	schedule162Start = 1961
	minModernGames   = 160
	maxModernGames   = 164
)

var shortenedSeasons = map[int]bool{1981: true, 1994: true, 2020: true}

// Diagnose inspects the in-scope records for anomalies worth a human look.
// Output is sorted by lineage, year, then kind.
func Diagnose(records []Record, table *lineage.Table) []Diagnostic {
	var diags []Diagnostic
	years := make(map[string]map[int]int)
	leagues := make(map[string]map[int]string)

	for _, r := range records {
		if !r.InScope {
			continue
		}
		year := *r.Year
		if years[r.CanonicalID] == nil {
			years[r.CanonicalID] = make(map[int]int)
		}
		years[r.CanonicalID][year]++
		if r.League != "" {
			if leagues[r.CanonicalID] == nil {
				leagues[r.CanonicalID] = make(map[int]string)
			}
			if _, seen := leagues[r.CanonicalID][year]; !seen {
				leagues[r.CanonicalID][year] = r.League
			}
		}

		if r.WinPct != nil && (*r.WinPct < extremeLow || *r.WinPct > extremeHigh) {
			diags = append(diags, Diagnostic{
				Kind:        DiagExtremeRecord,
				CanonicalID: r.CanonicalID,
				Year:        year,
				Detail:      fmt.Sprintf("%s win_pct %.3f", r.RawTeamID, *r.WinPct),
			})
		}

		games := *r.Games
		if year >= schedule162Start && !shortenedSeasons[year] && (games < minModernGames || games > maxModernGames) {
			diags = append(diags, Diagnostic{
				Kind:        DiagUnusualGames,
				CanonicalID: r.CanonicalID,
				Year:        year,
				Detail:      fmt.Sprintf("%s played %d games", r.RawTeamID, games),
			})
		}
	}

	for id, counts := range years {
		sorted := make([]int, 0, len(counts))
		for y, n := range counts {
			sorted = append(sorted, y)
			if n > 1 {
				diags = append(diags, Diagnostic{
					Kind:        DiagDuplicateSeason,
					CanonicalID: id,
					Year:        y,
					Detail:      fmt.Sprintf("%d records", n),
				})
			}
		}
		sort.Ints(sorted)
		for i := 1; i < len(sorted); i++ {
			if gap := sorted[i] - sorted[i-1]; gap > 1 {
				diags = append(diags, Diagnostic{
					Kind:        DiagYearGap,
					CanonicalID: id,
					Year:        sorted[i-1] + 1,
					Detail:      fmt.Sprintf("no seasons %d-%d", sorted[i-1]+1, sorted[i]-1),
				})
			}
		}
	}

	if table != nil {
		for _, ev := range table.Events() {
			counts, ok := years[ev.CanonicalID]
			if !ok {
				continue
			}
			for _, y := range []int{ev.Year - 1, ev.Year} {
				if counts[y] == 0 {
					diags = append(diags, Diagnostic{
						Kind:        DiagMissingBoundary,
						CanonicalID: ev.CanonicalID,
						Year:        y,
						Detail:      fmt.Sprintf("no season around %s to %s move in %d", ev.FromCity, ev.ToCity, ev.Year),
					})
				}
			}
			if before, after, ok := leaguesAround(leagues[ev.CanonicalID], ev.Year); ok && before != after {
				diags = append(diags, Diagnostic{
					Kind:        DiagLeagueChange,
					CanonicalID: ev.CanonicalID,
					Year:        ev.Year,
					Detail:      fmt.Sprintf("league %s to %s with %s to %s move", before, after, ev.FromCity, ev.ToCity),
				})
			}
		}
	}

	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.CanonicalID != b.CanonicalID {
			return a.CanonicalID < b.CanonicalID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Kind < b.Kind
	})
	return diags
}

// leaguesAround returns the league of the last season before year and of the
// first season from year on.
func leaguesAround(byYear map[int]string, year int) (before, after string, ok bool) {
	last, first := 0, 0
	for y := range byYear {
		if y < year && (last == 0 || y > last) {
			last = y
		}
		if y >= year && (first == 0 || y < first) {
			first = y
		}
	}
	if last == 0 || first == 0 {
		return "", "", false
	}
	return byYear[last], byYear[first], true
}

// CountByKind tallies diagnostics per kind.
func CountByKind(diags []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}
