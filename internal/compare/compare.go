// Package compare computes pre/post relocation statistics for eligible
// window pairs: means, an independent two-sample t-test and Cohen's d.
package compare

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/TobiSchelling/relocstat/internal/validate"
	"github.com/TobiSchelling/relocstat/internal/window"
)

// Method selects the two-sample test.
type Method string

const (
	Welch   Method = "welch"
	Student Method = "student"
)

// ParseMethod maps a configuration value onto a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case Welch, "":
		return Welch, nil
	case Student:
		return Student, nil
	}
	return "", fmt.Errorf("unknown test method %q (want welch or student)", s)
}

// Note explains why a statistic is missing.
type Note string

const (
	NoteNone             Note = ""
	NoteZeroVariance     Note = "zero_variance"
	NoteInsufficientData Note = "insufficient_data"
)

// ErrDataInsufficient is matched by every *DataInsufficientError.
var ErrDataInsufficient = errors.New("insufficient data")

// DataInsufficientError is returned for pairs that fail the sample-size gate.
type DataInsufficientError struct {
	CanonicalID string
	Year        int
	PreSeasons  int
	PostSeasons int
	MinSeasons  int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("%s %d: insufficient data (pre %d, post %d, need %d each)",
		e.CanonicalID, e.Year, e.PreSeasons, e.PostSeasons, e.MinSeasons)
}

func (e *DataInsufficientError) Is(target error) bool {
	return target == ErrDataInsufficient
}

// Result is the comparison for one relocation event. Nil statistics were not
// computable; Note says why.
type Result struct {
	CanonicalID      string
	LineageName      string
	FromCity         string
	ToCity           string
	RelocationYear   int
	PreSeasons       int
	PostSeasons      int
	PreMean          *float64
	PostMean         *float64
	Delta            *float64
	Test             Method
	TestStatistic    *float64
	DegreesOfFreedom *float64
	PValue           *float64
	EffectSize       *float64
	EffectMagnitude  Magnitude
	Eligible         bool
	Note             Note
}

// Verdict is a short human label for the direction of change.
func (r Result) Verdict() string {
	switch {
	case !r.Eligible:
		return "insufficient data"
	case r.Delta == nil:
		return "undetermined"
	case *r.Delta > 0:
		return "improved"
	case *r.Delta < 0:
		return "declined"
	}
	return "unchanged"
}

// Engine runs comparisons with a fixed test method.
type Engine struct {
	method  Method
	workers int
}

// NewEngine creates an Engine. workers bounds CompareAll's fan-out.
func NewEngine(method Method, workers int) *Engine {
	if method == "" {
		method = Welch
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{method: method, workers: workers}
}

// Method returns the configured test method.
func (e *Engine) Method() Method {
	return e.method
}

// Describe returns the descriptive part of a result (means, delta, counts)
// regardless of eligibility.
func Describe(pair window.Pair) Result {
	r := Result{
		CanonicalID:    pair.Event.CanonicalID,
		LineageName:    pair.LineageName,
		FromCity:       pair.Event.FromCity,
		ToCity:         pair.Event.ToCity,
		RelocationYear: pair.Event.Year,
		PreSeasons:     pair.Pre.SeasonCount(),
		PostSeasons:    pair.Post.SeasonCount(),
		Eligible:       pair.Eligible,
	}
	if !pair.Eligible {
		r.Note = NoteInsufficientData
	}

	pre, post := pair.Pre.MeanWinPct(), pair.Post.MeanWinPct()
	if pre != nil {
		r.PreMean = ptr(validate.Round3(*pre))
	}
	if post != nil {
		r.PostMean = ptr(validate.Round3(*post))
	}
	if pre != nil && post != nil {
		r.Delta = ptr(validate.Round3(*post - *pre))
	}
	return r
}

// Compare runs the significance test and effect size for an eligible pair.
// Ineligible pairs return a *DataInsufficientError.
func (e *Engine) Compare(pair window.Pair) (Result, error) {
	if !pair.Eligible {
		return Result{}, &DataInsufficientError{
			CanonicalID: pair.Event.CanonicalID,
			Year:        pair.Event.Year,
			PreSeasons:  pair.Pre.SeasonCount(),
			PostSeasons: pair.Post.SeasonCount(),
			MinSeasons:  pair.MinSeasons,
		}
	}

	r := Describe(pair)
	r.Test = e.method

	pre, post := pair.Pre.WinPcts(), pair.Post.WinPcts()
	if tt, ok := e.tTest(pre, post); ok {
		r.TestStatistic = ptr(tt.statistic)
		r.DegreesOfFreedom = ptr(tt.df)
		r.PValue = ptr(tt.p)
	} else {
		r.Note = NoteZeroVariance
	}

	if d, ok := CohensD(pre, post); ok {
		r.EffectSize = ptr(d)
		r.EffectMagnitude = MagnitudeOf(d)
	} else {
		r.Note = NoteZeroVariance
	}
	return r, nil
}

// CompareAll compares every pair concurrently. Ineligible pairs get their
// descriptive result; the output is in pair order.
func (e *Engine) CompareAll(ctx context.Context, pairs []window.Pair) ([]Result, error) {
	results := make([]Result, len(pairs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, pair := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Compare(pair)
			if errors.Is(err, ErrDataInsufficient) {
				results[i] = Describe(pair)
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comparing windows: %w", err)
	}
	return results, nil
}

type tResult struct {
	statistic float64
	df        float64
	p         float64
}

// tTest tests post against pre, so a positive statistic means improvement.
func (e *Engine) tTest(pre, post []float64) (tResult, bool) {
	n1, n2 := float64(len(pre)), float64(len(post))
	m1, v1 := stat.MeanVariance(pre, nil)
	m2, v2 := stat.MeanVariance(post, nil)

	var se, df float64
	switch e.method {
	case Student:
		sp2 := ((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2)
		se = math.Sqrt(sp2 * (1/n1 + 1/n2))
		df = n1 + n2 - 2
	default:
		a, b := v1/n1, v2/n2
		se = math.Sqrt(a + b)
		if se > 0 {
			df = (a + b) * (a + b) / (a*a/(n1-1) + b*b/(n2-1))
		}
	}
	if degenerateSE(se) {
		return tResult{}, false
	}

	t := (m2 - m1) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}
	return tResult{statistic: t, df: df, p: p}, true
}

func ptr(v float64) *float64 { return &v }

// Identical values can leave rounding residue in the variance.
const minVariance = 1e-12

func degenerateSE(se float64) bool {
	return math.IsNaN(se) || se*se < minVariance
}
