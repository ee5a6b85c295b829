package database

import (
	"time"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

// Run describes one analysis run.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	SeasonsPath     string
	LineagesVersion string
	TestMethod      string
	MinSeasons      int
	ModernEraStart  int
	TotalRecords    int
	InScope         int
	Relocations     int
	Eligible        int
}

// Archive is everything a run produced.
type Archive struct {
	Run     Run
	Records []validate.Record
	Report  validate.Report
	Results []compare.Result
}

// Relocation is an archived relocation row as read back for display.
type Relocation struct {
	CanonicalID    string
	LineageName    string
	FromCity       string
	ToCity         string
	RelocationYear int
	PreSeasons     int
	PostSeasons    int
	Delta          *float64
	PValue         *float64
	Eligible       bool
	Verdict        string
}

// Stats holds aggregate archive counts.
type Stats struct {
	Seasons     int
	InScope     int
	Relocations int
	Eligible    int
	Diagnostics int
}
