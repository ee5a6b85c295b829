// Package season reads raw per-season team records from CSV.
package season

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Record is one raw season row. Numeric fields are nil when the source cell
// is blank or unparseable; validation decides what that means.
type Record struct {
	RawTeamID    string
	Year         *int
	League       string
	Wins         *int
	Losses       *int
	Games        *int
	GamesDerived bool
	// Malformed marks a row the CSV reader could not split into fields.
	Malformed bool
	Line      int
}

// SchemaError reports required columns missing from the input header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "seasons file missing required columns: " + strings.Join(e.Missing, ", ")
}

var aliases = map[string]string{
	"raw_team_id": "raw_team_id",
	"teamid":      "raw_team_id",
	"team_id":     "raw_team_id",
	"year":        "year",
	"yearid":      "year",
	"league":      "league",
	"lgid":        "league",
	"wins":        "wins",
	"w":           "wins",
	"losses":      "losses",
	"l":           "losses",
	"games":       "games",
	"g":           "games",
}

var required = []string{"raw_team_id", "year", "wins", "losses"}

// Load reads a seasons CSV file from disk.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seasons file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses season rows. Lahman Teams.csv headers are accepted. When the
// games column is absent or a cell is blank, games is derived as wins+losses.
// A data row that fails CSV parsing is kept as a Malformed record; only a
// broken header is an error.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaError{Missing: required}
		}
		return nil, fmt.Errorf("reading seasons header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		name, ok := aliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}

	var missing []string
	for _, req := range required {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			records = append(records, Record{Malformed: true, Line: perr.StartLine})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading seasons: %w", err)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)

		rec := Record{
			RawTeamID: cell(row, "raw_team_id"),
			League:    cell(row, "league"),
			Year:      parseInt(cell(row, "year")),
			Wins:      parseInt(cell(row, "wins")),
			Losses:    parseInt(cell(row, "losses")),
			Games:     parseInt(cell(row, "games")),
			Line:      line,
		}
		if rec.Games == nil && rec.Wins != nil && rec.Losses != nil {
			g := *rec.Wins + *rec.Losses
			rec.Games = &g
			rec.GamesDerived = true
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return nil
		}
		v = int(f)
	}
	return &v
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Int returns the value behind p, or 0 when it is nil.
func Int(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
