package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// WriteAll writes every CSV table and the markdown report into dir,
// overwriting earlier files. The HTML report is written when withHTML is
// set. It returns the paths written.
func WriteAll(dir string, doc Document, withHTML bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	tables := []Table{
		SeasonsTable(doc.Records),
		RelocationsTable(doc.Results),
		StatisticsTable(doc.Results),
		QualityTable(doc.Report),
		DiagnosticsTable(doc.Report.Diagnostics),
	}

	var written []string
	for _, t := range tables {
		path := filepath.Join(dir, t.Name)
		if err := WriteCSV(path, t); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	markdown := Markdown(doc)
	mdPath := filepath.Join(dir, MarkdownFile)
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return written, fmt.Errorf("writing %s: %w", MarkdownFile, err)
	}
	written = append(written, mdPath)

	if withHTML {
		page, err := HTML(markdown, "Franchise relocation report")
		if err != nil {
			return written, err
		}
		htmlPath := filepath.Join(dir, HTMLFile)
		if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", HTMLFile, err)
		}
		written = append(written, htmlPath)
	}

	return written, nil
}

// WriteCSV writes t with its header to path.
func WriteCSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", t.Name, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", t.Name, err)
	}
	return f.Close()
}
