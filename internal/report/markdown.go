package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

// maxDiagnosticRows caps the diagnostics listed inline; the CSV has them all.
const maxDiagnosticRows = 50

// Document is everything a report is rendered from.
type Document struct {
	RunID           string
	GeneratedAt     time.Time
	SeasonsPath     string
	LineagesVersion string
	Method          compare.Method
	MinSeasons      int
	ModernEraStart  int
	Records         []validate.Record
	Report          validate.Report
	Results         []compare.Result
	Summary         compare.Summary
}

// Markdown assembles the human-readable report.
func Markdown(doc Document) string {
	sections := []string{
		header(doc),
		summarySection(doc.Summary),
		"## Relocations\n\n" + markdownTable(RelocationsTable(doc.Results)),
		statisticsSection(doc),
		qualitySection(doc.Report),
		diagnosticsSection(doc.Report.Diagnostics),
		"## Caveats\n\n" +
			"Differences are descriptive. Roster changes, league expansion and schedule length " +
			"are not controlled for, so a delta is not evidence that relocating caused it.",
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func header(doc Document) string {
	var b strings.Builder
	b.WriteString("# Franchise relocation report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", doc.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", doc.GeneratedAt.UTC().Format(time.RFC3339))
	if doc.SeasonsPath != "" {
		fmt.Fprintf(&b, "- Seasons: `%s`\n", doc.SeasonsPath)
	}
	fmt.Fprintf(&b, "- Lineage mapping: %s\n", doc.LineagesVersion)
	fmt.Fprintf(&b, "- Test: %s, minimum %d seasons per window, seasons from %d", doc.Method, doc.MinSeasons, doc.ModernEraStart)
	return b.String()
}

func summarySection(s compare.Summary) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Relocations: %d (%d eligible)\n", s.Relocations, s.Eligible)
	fmt.Fprintf(&b, "- Improved: %d, declined: %d, unchanged: %d\n", s.Improved, s.Declined, s.Unchanged)
	fmt.Fprintf(&b, "- Significant at p < %.2f: %d\n", compare.SignificanceLevel, s.Significant)
	if s.MeanDelta != nil {
		fmt.Fprintf(&b, "- Mean change in win percentage: %+.3f\n", *s.MeanDelta)
	}
	if s.ReadyForMetaAnalysis {
		b.WriteString("- Enough eligible relocations for a pooled analysis.")
	} else {
		fmt.Fprintf(&b, "- Fewer than %d eligible relocations; treat results as case studies.", compare.MetaAnalysisMinimum)
	}
	return strings.TrimRight(b.String(), "\n")
}

func statisticsSection(doc Document) string {
	t := StatisticsTable(doc.Results)
	if len(t.Rows) == 0 {
		return fmt.Sprintf("## Statistical results\n\nNo relocation has %d or more in-scope seasons on both sides.", doc.MinSeasons)
	}
	return "## Statistical results\n\n" + markdownTable(t)
}

func qualitySection(rep validate.Report) string {
	return fmt.Sprintf("## Data quality\n\n%d of %d records in scope (%.1f%% retained).\n\n%s",
		rep.InScope, rep.Total, 100*rep.Retention(), markdownTable(QualityTable(rep)))
}

func diagnosticsSection(diags []validate.Diagnostic) string {
	if len(diags) == 0 {
		return "## Diagnostics\n\nNo warnings."
	}
	shown := diags
	if len(shown) > maxDiagnosticRows {
		shown = shown[:maxDiagnosticRows]
	}
	s := "## Diagnostics\n\n" + markdownTable(DiagnosticsTable(shown))
	if rest := len(diags) - len(shown); rest > 0 {
		s += fmt.Sprintf("\n\n%d more in `%s`.", rest, DiagnosticsFile)
	}
	return s
}

func markdownTable(t Table) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(t.Header), " | ") + " |\n")
	seps := make([]string, len(t.Header))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |")
	for _, row := range t.Rows {
		b.WriteString("\n| " + strings.Join(escapeCells(row), " | ") + " |")
	}
	return b.String()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}
