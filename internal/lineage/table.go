package lineage

import (
	"fmt"
	"sort"
	"strings"
)

// Definition is one hand-curated lineage as read from the mapping artifact.
type Definition struct {
	CanonicalID string
	Name        string
	Notes       string
	Segments    []Segment
}

// Artifact is a versioned set of lineage definitions.
type Artifact struct {
	Version     string
	Definitions []Definition
}

// ConfigError reports an invalid or ambiguous lineage mapping. It is fatal:
// no record is processed against a mapping that fails to build.
type ConfigError struct {
	CanonicalID string
	RawTeamID   string
	Year        int
	Reason      string
}

func (e *ConfigError) Error() string {
	var where []string
	if e.CanonicalID != "" {
		where = append(where, "lineage "+e.CanonicalID)
	}
	if e.RawTeamID != "" {
		where = append(where, "raw id "+e.RawTeamID)
	}
	if e.Year != 0 {
		where = append(where, fmt.Sprintf("year %d", e.Year))
	}
	if len(where) == 0 {
		return "lineage config: " + e.Reason
	}
	return fmt.Sprintf("lineage config (%s): %s", strings.Join(where, ", "), e.Reason)
}

// Resolution is the outcome of resolving a (raw_team_id, year) pair.
type Resolution struct {
	CanonicalID string
	City        string
	Segment     Segment
	Defunct     bool
}

type indexEntry struct {
	segment Segment
	lineage int
}

// Table is the validated, indexed set of lineages. It is read-only after
// Build returns.
type Table struct {
	version        string
	modernEraStart int
	lineages       []Lineage
	byID           map[string]int
	byRawID        map[string][]indexEntry
}

// Build validates the artifact and indexes it for resolution. Lineages whose
// history ends at or before modernEraStart are marked defunct.
func Build(a Artifact, modernEraStart int) (*Table, error) {
	t := &Table{
		version:        a.Version,
		modernEraStart: modernEraStart,
		byID:           make(map[string]int, len(a.Definitions)),
		byRawID:        make(map[string][]indexEntry),
	}

	if len(a.Definitions) == 0 {
		return nil, &ConfigError{Reason: "no lineages defined"}
	}

	for _, def := range a.Definitions {
		l, err := buildLineage(def)
		if err != nil {
			return nil, err
		}
		if _, dup := t.byID[l.CanonicalID]; dup {
			return nil, &ConfigError{CanonicalID: l.CanonicalID, Reason: "canonical id defined more than once"}
		}

		last := l.Segments[len(l.Segments)-1]
		l.Defunct = !last.Open() && *last.End <= modernEraStart

		idx := len(t.lineages)
		t.lineages = append(t.lineages, l)
		t.byID[l.CanonicalID] = idx
		for _, s := range l.Segments {
			t.byRawID[s.RawTeamID] = append(t.byRawID[s.RawTeamID], indexEntry{segment: s, lineage: idx})
		}
	}

	if err := t.checkAmbiguity(); err != nil {
		return nil, err
	}
	return t, nil
}

func buildLineage(def Definition) (Lineage, error) {
	id := strings.TrimSpace(def.CanonicalID)
	if id == "" {
		return Lineage{}, &ConfigError{Reason: "lineage without canonical id"}
	}
	if len(def.Segments) == 0 {
		return Lineage{}, &ConfigError{CanonicalID: id, Reason: "lineage has no segments"}
	}

	segs := make([]Segment, len(def.Segments))
	for i, s := range def.Segments {
		s.RawTeamID = strings.TrimSpace(s.RawTeamID)
		s.City = strings.TrimSpace(s.City)
		switch {
		case s.RawTeamID == "":
			return Lineage{}, &ConfigError{CanonicalID: id, Year: s.Start, Reason: "segment without raw team id"}
		case s.City == "":
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: s.RawTeamID, Year: s.Start, Reason: "segment without city"}
		case s.Start <= 0:
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: s.RawTeamID, Reason: "segment start year must be positive"}
		case s.End != nil && *s.End <= s.Start:
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: s.RawTeamID, Year: s.Start,
				Reason: fmt.Sprintf("segment end %d is not after start %d", *s.End, s.Start)}
		}
		segs[i] = s
	}

	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	for i := 1; i < len(segs); i++ {
		prev, cur := segs[i-1], segs[i]
		if prev.Open() {
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: prev.RawTeamID, Year: prev.Start,
				Reason: "open-ended segment is not the last segment"}
		}
		if *prev.End < cur.Start {
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: cur.RawTeamID, Year: *prev.End,
				Reason: fmt.Sprintf("gap between %d and %d", *prev.End, cur.Start)}
		}
		if *prev.End > cur.Start {
			return Lineage{}, &ConfigError{CanonicalID: id, RawTeamID: cur.RawTeamID, Year: cur.Start,
				Reason: fmt.Sprintf("segment overlaps previous segment ending %d", *prev.End)}
		}
	}

	return Lineage{
		CanonicalID: id,
		Name:        strings.TrimSpace(def.Name),
		Notes:       strings.TrimSpace(def.Notes),
		Segments:    segs,
	}, nil
}

// checkAmbiguity rejects any raw identifier claimed by two segments in an
// overlapping year, whether in the same lineage or in different ones.
func (t *Table) checkAmbiguity() error {
	rawIDs := make([]string, 0, len(t.byRawID))
	for raw := range t.byRawID {
		rawIDs = append(rawIDs, raw)
	}
	sort.Strings(rawIDs)

	for _, raw := range rawIDs {
		entries := t.byRawID[raw]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].segment.Start < entries[j].segment.Start })
		for i := 1; i < len(entries); i++ {
			prev, cur := entries[i-1], entries[i]
			if prev.segment.Open() || *prev.segment.End > cur.segment.Start {
				return &ConfigError{
					CanonicalID: t.lineages[cur.lineage].CanonicalID,
					RawTeamID:   raw,
					Year:        cur.segment.Start,
					Reason: fmt.Sprintf("ambiguous mapping: also claimed by lineage %s",
						t.lineages[prev.lineage].CanonicalID),
				}
			}
		}
		t.byRawID[raw] = entries
	}
	return nil
}

// Resolve maps a raw identifier in a given year to its lineage segment.
// It reports false when the pair falls in no configured range.
func (t *Table) Resolve(rawTeamID string, year int) (Resolution, bool) {
	for _, e := range t.byRawID[strings.TrimSpace(rawTeamID)] {
		if !e.segment.Contains(year) {
			continue
		}
		l := t.lineages[e.lineage]
		return Resolution{
			CanonicalID: l.CanonicalID,
			City:        e.segment.City,
			Segment:     e.segment,
			Defunct:     l.Defunct,
		}, true
	}
	return Resolution{}, false
}

// Lineages returns all lineages in definition order.
func (t *Table) Lineages() []Lineage {
	out := make([]Lineage, len(t.lineages))
	copy(out, t.lineages)
	return out
}

// Lineage returns the lineage with the given canonical id.
func (t *Table) Lineage(canonicalID string) (Lineage, bool) {
	idx, ok := t.byID[canonicalID]
	if !ok {
		return Lineage{}, false
	}
	return t.lineages[idx], true
}

// Events returns the relocation events of every non-defunct lineage.
func (t *Table) Events() []Event {
	var events []Event
	for _, l := range t.lineages {
		if l.Defunct {
			continue
		}
		events = append(events, l.Events()...)
	}
	return events
}

// Version returns the artifact version the table was built from.
func (t *Table) Version() string {
	return t.version
}

// ModernEraStart returns the threshold used to mark defunct lineages and
// pre-modern seasons.
func (t *Table) ModernEraStart() int {
	return t.modernEraStart
}
