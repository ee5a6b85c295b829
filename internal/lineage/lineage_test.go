package lineage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func braves() Definition {
	return Definition{
		CanonicalID: "ATL",
		Name:        "Braves",
		Segments: []Segment{
			{RawTeamID: "ML1", City: "Milwaukee", Start: 1953, End: intp(1966)},
			{RawTeamID: "BSN", City: "Boston", Start: 1876, End: intp(1953)},
			{RawTeamID: "ATL", City: "Atlanta", Start: 1966},
		},
	}
}

func TestBuildSortsSegmentsAndResolves(t *testing.T) {
	table, err := Build(Artifact{Version: "t1", Definitions: []Definition{braves()}}, 1901)
	require.NoError(t, err)

	l, ok := table.Lineage("ATL")
	require.True(t, ok)
	require.Len(t, l.Segments, 3)
	assert.Equal(t, "BSN", l.Segments[0].RawTeamID)
	assert.Equal(t, "ATL", l.Segments[2].RawTeamID)
	assert.False(t, l.Defunct)
	assert.Equal(t, "t1", table.Version())

	cases := []struct {
		raw  string
		year int
		city string
		ok   bool
	}{
		{"BSN", 1876, "Boston", true},
		{"BSN", 1952, "Boston", true},
		{"BSN", 1953, "", false},
		{"ML1", 1953, "Milwaukee", true},
		{"ML1", 1965, "Milwaukee", true},
		{"ATL", 1966, "Atlanta", true},
		{"ATL", 2024, "Atlanta", true},
		{"ATL", 1965, "", false},
		{"XXX", 1990, "", false},
	}
	for _, tc := range cases {
		res, ok := table.Resolve(tc.raw, tc.year)
		assert.Equal(t, tc.ok, ok, "%s %d", tc.raw, tc.year)
		if tc.ok {
			assert.Equal(t, "ATL", res.CanonicalID)
			assert.Equal(t, tc.city, res.City)
		}
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)

	first, ok := table.Resolve("CAL", 1980)
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		again, ok := table.Resolve("CAL", 1980)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "LAA", first.CanonicalID)
	assert.Equal(t, "Anaheim", first.City)
}

func TestLineageCoverage(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)

	for _, l := range table.Lineages() {
		first, last := l.Span()
		if last == nil {
			continue
		}
		total := 0
		for _, s := range l.Segments {
			total += s.Length()
		}
		assert.Equal(t, *last-first, total, l.CanonicalID)
	}
}

func TestEventsSkipRenames(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)

	mil, ok := table.Lineage("MIL")
	require.True(t, ok)
	events := mil.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 1970, events[0].Year)
	assert.Equal(t, "Seattle", events[0].FromCity)
	assert.Equal(t, "Milwaukee", events[0].ToCity)
	assert.Equal(t, 1969, events[0].PreStart)
	assert.Nil(t, events[0].PostEnd)

	mia, ok := table.Lineage("MIA")
	require.True(t, ok)
	assert.False(t, mia.Relocated())
}

func TestEventsSpanCityEras(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)

	laa, ok := table.Lineage("LAA")
	require.True(t, ok)
	events := laa.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, 1966, ev.Year)
	assert.Equal(t, 1961, ev.PreStart)
	assert.Nil(t, ev.PostEnd)

	atl, ok := table.Lineage("ATL")
	require.True(t, ok)
	events = atl.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 1953, events[0].Year)
	require.NotNil(t, events[0].PostEnd)
	assert.Equal(t, 1966, *events[0].PostEnd)
	assert.Equal(t, 1953, events[1].PreStart)
}

func TestDefunctLineages(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)

	for _, id := range []string{"BLN", "CL4", "LS3"} {
		l, ok := table.Lineage(id)
		require.True(t, ok, id)
		assert.True(t, l.Defunct, id)
	}

	res, ok := table.Resolve("BLN", 1895)
	require.True(t, ok)
	assert.True(t, res.Defunct)

	for _, ev := range table.Events() {
		assert.NotEqual(t, "BLN", ev.CanonicalID)
	}
}

func TestDefaultArtifactEvents(t *testing.T) {
	table, err := LoadDefault(1901)
	require.NoError(t, err)
	assert.Equal(t, "mlb-2024.1", table.Version())
	assert.Len(t, table.Events(), 14)
}

func TestBuildRejectsInvalidMappings(t *testing.T) {
	tests := []struct {
		name   string
		defs   []Definition
		reason string
	}{
		{
			name:   "empty",
			defs:   nil,
			reason: "no lineages",
		},
		{
			name: "gap",
			defs: []Definition{{CanonicalID: "X", Segments: []Segment{
				{RawTeamID: "A", City: "One", Start: 1950, End: intp(1955)},
				{RawTeamID: "B", City: "Two", Start: 1957},
			}}},
			reason: "gap",
		},
		{
			name: "overlap",
			defs: []Definition{{CanonicalID: "X", Segments: []Segment{
				{RawTeamID: "A", City: "One", Start: 1950, End: intp(1960)},
				{RawTeamID: "B", City: "Two", Start: 1958},
			}}},
			reason: "overlaps",
		},
		{
			name: "open end not last",
			defs: []Definition{{CanonicalID: "X", Segments: []Segment{
				{RawTeamID: "A", City: "One", Start: 1950},
				{RawTeamID: "B", City: "Two", Start: 1960},
			}}},
			reason: "open-ended",
		},
		{
			name: "inverted range",
			defs: []Definition{{CanonicalID: "X", Segments: []Segment{
				{RawTeamID: "A", City: "One", Start: 1960, End: intp(1950)},
			}}},
			reason: "not after start",
		},
		{
			name: "missing city",
			defs: []Definition{{CanonicalID: "X", Segments: []Segment{
				{RawTeamID: "A", Start: 1960},
			}}},
			reason: "without city",
		},
		{
			name: "duplicate id",
			defs: []Definition{
				{CanonicalID: "X", Segments: []Segment{{RawTeamID: "A", City: "One", Start: 1960}}},
				{CanonicalID: "X", Segments: []Segment{{RawTeamID: "B", City: "Two", Start: 1960}}},
			},
			reason: "more than once",
		},
		{
			name: "ambiguous across lineages",
			defs: []Definition{
				{CanonicalID: "X", Segments: []Segment{{RawTeamID: "A", City: "One", Start: 1950, End: intp(1970)}}},
				{CanonicalID: "Y", Segments: []Segment{{RawTeamID: "A", City: "Two", Start: 1969}}},
			},
			reason: "ambiguous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(Artifact{Definitions: tt.defs}, 1901)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, cfgErr.Error(), tt.reason)
		})
	}
}

func TestAmbiguityNamesYear(t *testing.T) {
	_, err := Build(Artifact{Definitions: []Definition{
		{CanonicalID: "X", Segments: []Segment{{RawTeamID: "A", City: "One", Start: 1950, End: intp(1970)}}},
		{CanonicalID: "Y", Segments: []Segment{{RawTeamID: "A", City: "Two", Start: 1969}}},
	}}, 1901)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Y", cfgErr.CanonicalID)
	assert.Equal(t, "A", cfgErr.RawTeamID)
	assert.Equal(t, 1969, cfgErr.Year)
}

func TestRawIDReuseWithoutOverlap(t *testing.T) {
	_, err := Build(Artifact{Definitions: []Definition{
		{CanonicalID: "X", Segments: []Segment{{RawTeamID: "A", City: "One", Start: 1950, End: intp(1960)}}},
		{CanonicalID: "Y", Segments: []Segment{{RawTeamID: "A", City: "Two", Start: 1960}}},
	}}, 1901)
	assert.NoError(t, err)
}

func TestParseCSV(t *testing.T) {
	src := "\ufeffcanonical_id,raw_team_id,city,start_year,end_year_or_open,name\n" +
		"X,AAA,Alpha,1950,1960,Explorers\n" +
		"X,BBB,Beta,1960,,\n" +
		"Z,ZZZ,Zeta,1890,1899,\n"

	a, err := ParseCSV(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, a.Definitions, 2)
	assert.Equal(t, "Explorers", a.Definitions[0].Name)
	require.Len(t, a.Definitions[0].Segments, 2)
	assert.Nil(t, a.Definitions[0].Segments[1].End)

	table, err := Build(a, 1901)
	require.NoError(t, err)
	z, ok := table.Lineage("Z")
	require.True(t, ok)
	assert.True(t, z.Defunct)
}

func TestParseCSVOpenEndYear(t *testing.T) {
	src := "canonical_id,raw_team_id,city,start_year,end_year_or_open\n" +
		"X,A,City A,1950,1960\n" +
		"X,B,City B,1960,open\n" +
		"Y,C,City C,1970,OPEN\n"

	a, err := ParseCSV(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, a.Definitions, 2)
	assert.Nil(t, a.Definitions[0].Segments[1].End)
	assert.Nil(t, a.Definitions[1].Segments[0].End)

	table, err := Build(a, 1901)
	require.NoError(t, err)
	res, ok := table.Resolve("B", 2024)
	require.True(t, ok)
	assert.Equal(t, "City B", res.City)
}

func TestParseCSVRejectsBadRows(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("canonical_id,raw_team_id,city,start_year\nX,A,B,1950\n"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "end_year")

	_, err = ParseCSV(strings.NewReader("canonical_id,raw_team_id,city,start_year,end_year\nX,A,B,nineteen,\n"))
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "line 2")
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "lineages.yaml")
	require.NoError(t, os.WriteFile(yamlPath, DefaultLineagesYAML, 0o644))
	table, err := Load(yamlPath, 1901)
	require.NoError(t, err)
	assert.NotEmpty(t, table.Lineages())

	csvPath := filepath.Join(dir, "lineages.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("canonical_id,raw_team_id,city,start_year,end_year\nX,A,One,1950,\n"), 0o644))
	a, err := LoadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "lineages.csv", a.Version)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
