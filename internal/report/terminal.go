package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/TobiSchelling/relocstat/internal/compare"
)

// Render prints t as a box-drawn table.
func Render(w io.Writer, t Table) {
	if len(t.Rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

// Project keeps only the named columns of t, in the given order.
func Project(t Table, columns ...string) Table {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		idx[h] = i
	}
	out := Table{Name: t.Name}
	var keep []int
	for _, c := range columns {
		if i, ok := idx[c]; ok {
			keep = append(keep, i)
			out.Header = append(out.Header, c)
		}
	}
	for _, r := range t.Rows {
		row := make([]string, len(keep))
		for j, i := range keep {
			row[j] = r[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// RenderSummary prints the aggregate summary as key/value lines.
func RenderSummary(w io.Writer, s compare.Summary) {
	fmt.Fprintf(w, "Relocations: %d (%d eligible)\n", s.Relocations, s.Eligible)
	fmt.Fprintf(w, "  Improved: %d  Declined: %d  Unchanged: %d\n", s.Improved, s.Declined, s.Unchanged)
	fmt.Fprintf(w, "  Significant (p < %.2f): %d\n", compare.SignificanceLevel, s.Significant)
	if s.MeanDelta != nil {
		fmt.Fprintf(w, "  Mean delta: %+.3f\n", *s.MeanDelta)
	}
	fmt.Fprintf(w, "  Ready for meta-analysis: %t\n", s.ReadyForMetaAnalysis)
}
