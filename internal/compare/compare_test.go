package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/relocstat/internal/lineage"
	"github.com/TobiSchelling/relocstat/internal/season"
	"github.com/TobiSchelling/relocstat/internal/validate"
	"github.com/TobiSchelling/relocstat/internal/window"
)

func intp(v int) *int { return &v }

func scoped(year int, pct float64) validate.Record {
	return validate.Record{
		Record:      season.Record{RawTeamID: "X", Year: intp(year)},
		CanonicalID: "X",
		Valid:       true,
		InScope:     true,
		WinPct:      &pct,
	}
}

func pairFor(t *testing.T, minSeasons int, pre, post []float64) window.Pair {
	t.Helper()
	l := lineage.Lineage{
		CanonicalID: "X",
		Name:        "Explorers",
		Segments: []lineage.Segment{
			{RawTeamID: "A", City: "Alpha", Start: 1960 - len(pre), End: intp(1960)},
			{RawTeamID: "B", City: "Beta", Start: 1960},
		},
	}
	var records []validate.Record
	for i, p := range pre {
		records = append(records, scoped(1960-len(pre)+i, p))
	}
	for i, p := range post {
		records = append(records, scoped(1960+i, p))
	}
	p, err := window.New(minSeasons, 1)
	require.NoError(t, err)
	pairs := p.Partition(l, records)
	require.Len(t, pairs, 1)
	return pairs[0]
}

func scenario() (pre, post []float64) {
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			pre = append(pre, 0.440)
		} else {
			pre = append(pre, 0.460)
		}
	}
	for i := 0; i < 7; i++ {
		post = append(post, 0.490, 0.510)
	}
	post = append(post, 0.500)
	return pre, post
}

func TestCompareScenario(t *testing.T) {
	pre, post := scenario()
	pair := pairFor(t, window.DefaultMinSeasons, pre, post)
	require.True(t, pair.Eligible)

	res, err := NewEngine(Welch, 1).Compare(pair)
	require.NoError(t, err)

	assert.Equal(t, 1960, res.RelocationYear)
	assert.Equal(t, "Alpha", res.FromCity)
	assert.Equal(t, "Beta", res.ToCity)
	assert.True(t, res.Eligible)
	require.NotNil(t, res.PreMean)
	require.NotNil(t, res.PostMean)
	require.NotNil(t, res.Delta)
	assert.Equal(t, 0.450, *res.PreMean)
	assert.Equal(t, 0.500, *res.PostMean)
	assert.Equal(t, 0.050, *res.Delta)

	require.NotNil(t, res.PValue)
	assert.Less(t, *res.PValue, 0.001)
	require.NotNil(t, res.TestStatistic)
	assert.Greater(t, *res.TestStatistic, 0.0)
	assert.Equal(t, Welch, res.Test)
	assert.Equal(t, MagnitudeLarge, res.EffectMagnitude)
	assert.Equal(t, NoteNone, res.Note)
	assert.Equal(t, "improved", res.Verdict())
}

func TestCompareStudentUsesPooledDegreesOfFreedom(t *testing.T) {
	pre, post := scenario()
	res, err := NewEngine(Student, 1).Compare(pairFor(t, window.DefaultMinSeasons, pre, post))
	require.NoError(t, err)
	require.NotNil(t, res.DegreesOfFreedom)
	assert.Equal(t, 23.0, *res.DegreesOfFreedom)
	assert.Less(t, *res.PValue, 0.001)
}

func TestWelchAgainstKnownValues(t *testing.T) {
	e := NewEngine(Welch, 1)
	tt, ok := e.tTest([]float64{0.4, 0.5, 0.6}, []float64{0.5, 0.6, 0.7})
	require.True(t, ok)
	assert.InDelta(t, 1.2247, tt.statistic, 1e-4)
	assert.InDelta(t, 4.0, tt.df, 1e-6)
	assert.InDelta(t, 0.2879, tt.p, 1e-4)
}

func TestCompareRefusesIneligible(t *testing.T) {
	pre, post := scenario()
	pair := pairFor(t, window.DefaultMinSeasons, pre[1:], post)
	require.False(t, pair.Eligible)

	_, err := NewEngine(Welch, 1).Compare(pair)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataInsufficient))

	var die *DataInsufficientError
	require.ErrorAs(t, err, &die)
	assert.Equal(t, 9, die.PreSeasons)
	assert.Equal(t, 15, die.PostSeasons)
	assert.Equal(t, 10, die.MinSeasons)

	desc := Describe(pair)
	assert.False(t, desc.Eligible)
	assert.Equal(t, NoteInsufficientData, desc.Note)
	assert.Nil(t, desc.PValue)
	require.NotNil(t, desc.Delta)
	assert.Equal(t, "insufficient data", desc.Verdict())
}

func TestCompareZeroVariance(t *testing.T) {
	flat := []float64{0.25, 0.25, 0.25}
	up := []float64{0.5, 0.5, 0.5}

	res, err := NewEngine(Welch, 1).Compare(pairFor(t, 2, flat, up))
	require.NoError(t, err)
	assert.Nil(t, res.TestStatistic)
	assert.Nil(t, res.PValue)
	assert.Nil(t, res.EffectSize)
	assert.Equal(t, MagnitudeNone, res.EffectMagnitude)
	assert.Equal(t, NoteZeroVariance, res.Note)

	res, err = NewEngine(Welch, 1).Compare(pairFor(t, 2, flat, []float64{0.49, 0.51, 0.5}))
	require.NoError(t, err)
	assert.NotNil(t, res.PValue)
	assert.Nil(t, res.EffectSize)
	assert.Equal(t, NoteZeroVariance, res.Note)
}

func TestEffectSizeSanity(t *testing.T) {
	pre := []float64{0.45, 0.50, 0.55}
	post := []float64{0.50, 0.55, 0.60}

	assert.InDelta(t, 0.05, PooledSD(pre, post), 1e-9)
	d, ok := CohensD(pre, post)
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)
	assert.Equal(t, MagnitudeLarge, MagnitudeOf(d))

	_, ok = CohensD([]float64{0.5}, post)
	assert.False(t, ok)
}

func TestMagnitudeOf(t *testing.T) {
	assert.Equal(t, MagnitudeNegligible, MagnitudeOf(0.19))
	assert.Equal(t, MagnitudeSmall, MagnitudeOf(-0.2))
	assert.Equal(t, MagnitudeMedium, MagnitudeOf(0.79))
	assert.Equal(t, MagnitudeLarge, MagnitudeOf(-0.8))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Welch, m)

	m, err = ParseMethod("student")
	require.NoError(t, err)
	assert.Equal(t, Student, m)

	_, err = ParseMethod("mann-whitney")
	assert.Error(t, err)
}

func TestCompareAllKeepsOrderAndDescribesIneligible(t *testing.T) {
	pre, post := scenario()
	eligible := pairFor(t, window.DefaultMinSeasons, pre, post)
	short := pairFor(t, window.DefaultMinSeasons, pre[:3], post)

	results, err := NewEngine(Welch, 4).CompareAll(context.Background(), []window.Pair{short, eligible, short})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.False(t, results[0].Eligible)
	assert.True(t, results[1].Eligible)
	assert.NotNil(t, results[1].PValue)
	assert.False(t, results[2].Eligible)
}

func TestSummarize(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	results := []Result{
		{Eligible: true, Delta: f(0.05), PValue: f(0.01)},
		{Eligible: true, Delta: f(-0.02), PValue: f(0.3)},
		{Eligible: true, Delta: f(0.0)},
		{Eligible: false, Delta: f(0.2)},
	}
	s := Summarize(results)
	assert.Equal(t, 4, s.Relocations)
	assert.Equal(t, 3, s.Eligible)
	assert.Equal(t, 1, s.Improved)
	assert.Equal(t, 1, s.Declined)
	assert.Equal(t, 1, s.Unchanged)
	assert.Equal(t, 1, s.Significant)
	require.NotNil(t, s.MeanDelta)
	assert.InDelta(t, 0.01, *s.MeanDelta, 1e-12)
	assert.False(t, s.ReadyForMetaAnalysis)

	for i := 0; i < 2; i++ {
		results = append(results, Result{Eligible: true, Delta: f(0.01)})
	}
	assert.True(t, Summarize(results).ReadyForMetaAnalysis)
	assert.Nil(t, Summarize(nil).MeanDelta)
}
