package compare

import "gonum.org/v1/gonum/stat"

// MetaAnalysisMinimum is the number of eligible relocations needed before a
// pooled analysis across events is meaningful.
const MetaAnalysisMinimum = 5

// SignificanceLevel is the alpha used for the significant count.
const SignificanceLevel = 0.05

// Summary aggregates results across relocations.
type Summary struct {
	Relocations          int
	Eligible             int
	Improved             int
	Declined             int
	Unchanged            int
	Significant          int
	MeanDelta            *float64
	ReadyForMetaAnalysis bool
}

// Summarize aggregates eligible results. Ineligible ones only count toward
// Relocations.
func Summarize(results []Result) Summary {
	s := Summary{Relocations: len(results)}
	var deltas []float64
	for _, r := range results {
		if !r.Eligible || r.Delta == nil {
			continue
		}
		s.Eligible++
		deltas = append(deltas, *r.Delta)
		switch {
		case *r.Delta > 0:
			s.Improved++
		case *r.Delta < 0:
			s.Declined++
		default:
			s.Unchanged++
		}
		if r.PValue != nil && *r.PValue < SignificanceLevel {
			s.Significant++
		}
	}
	if len(deltas) > 0 {
		s.MeanDelta = ptr(stat.Mean(deltas, nil))
	}
	s.ReadyForMetaAnalysis = s.Eligible >= MetaAnalysisMinimum
	return s
}
