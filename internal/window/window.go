// Package window splits each lineage's in-scope seasons into pre- and
// post-relocation windows, one pair per relocation event.
package window

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/TobiSchelling/relocstat/internal/lineage"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

// DefaultMinSeasons is the per-window sample size required for eligibility.
const DefaultMinSeasons = 10

// Side marks which side of a relocation a window covers.
type Side string

const (
	Pre  Side = "pre"
	Post Side = "post"
)

// Season is an in-scope season placed relative to a relocation year.
type Season struct {
	Record               validate.Record
	Year                 int
	WinPct               float64
	Offset               int
	YearsSinceRelocation *int
}

// Window is the ordered set of seasons on one side of a relocation.
type Window struct {
	CanonicalID string
	Event       lineage.Event
	Side        Side
	Seasons     []Season
}

// SeasonCount returns the number of seasons in the window.
func (w Window) SeasonCount() int {
	return len(w.Seasons)
}

// WinPcts returns the season win percentages in year order.
func (w Window) WinPcts() []float64 {
	out := make([]float64, len(w.Seasons))
	for i, s := range w.Seasons {
		out[i] = s.WinPct
	}
	return out
}

// MeanWinPct returns the arithmetic mean win percentage, or nil for an empty
// window.
func (w Window) MeanWinPct() *float64 {
	if len(w.Seasons) == 0 {
		return nil
	}
	m := stat.Mean(w.WinPcts(), nil)
	return &m
}

// Years returns the season years in order.
func (w Window) Years() []int {
	out := make([]int, len(w.Seasons))
	for i, s := range w.Seasons {
		out[i] = s.Year
	}
	return out
}

// Pair is the pre/post comparison unit for one relocation event.
type Pair struct {
	Event       lineage.Event
	LineageName string
	Pre         Window
	Post        Window
	MinSeasons  int
	Eligible    bool
}

// Partitioner builds window pairs.
type Partitioner struct {
	minSeasons int
	workers    int
}

// New creates a Partitioner. minSeasons must be at least 2 so that sample
// variance is defined; workers below 1 are treated as 1.
func New(minSeasons, workers int) (*Partitioner, error) {
	if minSeasons < 2 {
		return nil, fmt.Errorf("min seasons must be at least 2, got %d", minSeasons)
	}
	if workers < 1 {
		workers = 1
	}
	return &Partitioner{minSeasons: minSeasons, workers: workers}, nil
}

// MinSeasons returns the eligibility threshold.
func (p *Partitioner) MinSeasons() int {
	return p.minSeasons
}

// Partition emits one pair per city change of l. Defunct lineages and
// lineages with a single segment yield nothing. Records for other lineages
// and out-of-scope records are ignored.
func (p *Partitioner) Partition(l lineage.Lineage, records []validate.Record) []Pair {
	if l.Defunct || len(l.Segments) < 2 {
		return nil
	}

	var own []validate.Record
	for _, r := range records {
		if r.InScope && r.CanonicalID == l.CanonicalID && r.WinPct != nil {
			own = append(own, r)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return *own[i].Year < *own[j].Year })

	var pairs []Pair
	for _, ev := range l.Events() {
		pre := Window{CanonicalID: l.CanonicalID, Event: ev, Side: Pre}
		post := Window{CanonicalID: l.CanonicalID, Event: ev, Side: Post}

		for _, r := range own {
			year := *r.Year
			s := Season{Record: r, Year: year, WinPct: *r.WinPct, Offset: year - ev.Year}
			switch {
			case year >= ev.PreStart && year < ev.Year:
				pre.Seasons = append(pre.Seasons, s)
			case year >= ev.Year && (ev.PostEnd == nil || year < *ev.PostEnd):
				since := year - ev.Year
				s.YearsSinceRelocation = &since
				post.Seasons = append(post.Seasons, s)
			}
		}

		pairs = append(pairs, Pair{
			Event:       ev,
			LineageName: l.Name,
			Pre:         pre,
			Post:        post,
			MinSeasons:  p.minSeasons,
			Eligible:    pre.SeasonCount() >= p.minSeasons && post.SeasonCount() >= p.minSeasons,
		})
	}
	return pairs
}

// PartitionAll partitions every lineage of the table concurrently. Output is
// ordered by lineage definition order, then event year.
func (p *Partitioner) PartitionAll(ctx context.Context, table *lineage.Table, records []validate.Record) ([]Pair, error) {
	byLineage := make(map[string][]validate.Record)
	for _, r := range records {
		if r.InScope {
			byLineage[r.CanonicalID] = append(byLineage[r.CanonicalID], r)
		}
	}

	lineages := table.Lineages()
	slots := make([][]Pair, len(lineages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, l := range lineages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i] = p.Partition(l, byLineage[l.CanonicalID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("partitioning windows: %w", err)
	}

	var pairs []Pair
	for _, s := range slots {
		pairs = append(pairs, s...)
	}
	return pairs, nil
}
