// Package lineage resolves raw per-season team identifiers into canonical
// franchise lineages and derives relocation events from their segments.
package lineage

import "strings"

// Segment is one contiguous city/era portion of a lineage. The year range is
// half-open: [Start, End). A nil End means the segment is still active.
type Segment struct {
	RawTeamID string
	City      string
	Start     int
	End       *int
}

// Contains reports whether year falls inside the segment's range.
func (s Segment) Contains(year int) bool {
	if year < s.Start {
		return false
	}
	return s.End == nil || year < *s.End
}

// Open reports whether the segment has no end year.
func (s Segment) Open() bool {
	return s.End == nil
}

// Length returns the number of seasons covered by a closed segment, or 0 for
// an open one.
func (s Segment) Length() int {
	if s.End == nil {
		return 0
	}
	return *s.End - s.Start
}

// Lineage is the canonical identity of a franchise across its history.
type Lineage struct {
	CanonicalID string
	Name        string
	Notes       string
	Segments    []Segment
	Defunct     bool
}

// Event is a city change between two consecutive segments of a lineage.
// PreStart is the first year of the city era that ends at the boundary and
// PostEnd the (exclusive) last year of the era that starts at it; consecutive
// segments sharing a city are one era.
type Event struct {
	CanonicalID string
	FromCity    string
	ToCity      string
	Year        int
	PreStart    int
	PostEnd     *int
}

// Events derives relocation events from the segment boundaries. Boundaries
// where only the raw identifier changes (pure renames) yield no event.
func (l Lineage) Events() []Event {
	var events []Event
	for i := 1; i < len(l.Segments); i++ {
		prev, cur := l.Segments[i-1], l.Segments[i]
		if sameCity(prev.City, cur.City) {
			continue
		}

		preStart := prev.Start
		for j := i - 2; j >= 0 && sameCity(l.Segments[j].City, prev.City); j-- {
			preStart = l.Segments[j].Start
		}

		postEnd := cur.End
		for j := i + 1; j < len(l.Segments) && sameCity(l.Segments[j].City, cur.City); j++ {
			postEnd = l.Segments[j].End
		}

		events = append(events, Event{
			CanonicalID: l.CanonicalID,
			FromCity:    prev.City,
			ToCity:      cur.City,
			Year:        cur.Start,
			PreStart:    preStart,
			PostEnd:     postEnd,
		})
	}
	return events
}

// Relocated reports whether the lineage changed city at least once.
func (l Lineage) Relocated() bool {
	return len(l.Events()) > 0
}

// Span returns the first start year and the last end year of the lineage.
// The end is nil when the last segment is open.
func (l Lineage) Span() (int, *int) {
	if len(l.Segments) == 0 {
		return 0, nil
	}
	return l.Segments[0].Start, l.Segments[len(l.Segments)-1].End
}

// SegmentFor returns the segment covering year, if any.
func (l Lineage) SegmentFor(year int) (Segment, bool) {
	for _, s := range l.Segments {
		if s.Contains(year) {
			return s, true
		}
	}
	return Segment{}, false
}

func sameCity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
