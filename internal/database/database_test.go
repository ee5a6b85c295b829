package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/season"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intp(v int) *int       { return &v }
func fp(v float64) *float64 { return &v }

func sampleArchive(id string) Archive {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Archive{
		Run: Run{
			ID:              id,
			StartedAt:       started,
			FinishedAt:      started.Add(2 * time.Second),
			SeasonsPath:     "Teams.csv",
			LineagesVersion: "mlb-2024.1",
			TestMethod:      "welch",
			MinSeasons:      10,
			ModernEraStart:  1901,
			TotalRecords:    2,
			InScope:         1,
			Relocations:     2,
			Eligible:        1,
		},
		Records: []validate.Record{
			{
				Record:      season.Record{RawTeamID: "BSN", Year: intp(1950), League: "NL", Wins: intp(83), Losses: intp(71), Games: intp(154), Line: 2},
				CanonicalID: "ATL", City: "Boston", Valid: true, InScope: true, WinPct: fp(0.539),
			},
			{
				Record:    season.Record{RawTeamID: "ZZZ", Year: intp(1950), Line: 3},
				Exclusion: validate.ReasonMissingFields,
			},
		},
		Report: validate.Report{
			Total:    2,
			InScope:  1,
			Excluded: map[validate.Reason]int{validate.ReasonMissingFields: 1},
			Diagnostics: []validate.Diagnostic{
				{Kind: validate.DiagYearGap, CanonicalID: "ATL", Year: 1951, Detail: "no seasons 1951-1952"},
			},
		},
		Results: []compare.Result{
			{
				CanonicalID: "ATL", LineageName: "Braves", FromCity: "Boston", ToCity: "Milwaukee",
				RelocationYear: 1953, PreSeasons: 52, PostSeasons: 13,
				PreMean: fp(0.47), PostMean: fp(0.563), Delta: fp(0.093),
				Test: compare.Welch, PValue: fp(0.0001), EffectSize: fp(1.2),
				EffectMagnitude: compare.MagnitudeLarge, Eligible: true,
			},
			{
				CanonicalID: "LAA", FromCity: "Los Angeles", ToCity: "Anaheim",
				RelocationYear: 1966, PreSeasons: 5, PostSeasons: 40,
				Note: compare.NoteInsufficientData,
			},
		},
	}
}

func TestArchiveRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.ArchiveRun(context.Background(), sampleArchive("run-1")); err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}

	run, err := db.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if run == nil {
		t.Fatal("expected a stored run")
	}
	if run.ID != "run-1" {
		t.Errorf("expected run id 'run-1', got %q", run.ID)
	}
	if run.LineagesVersion != "mlb-2024.1" {
		t.Errorf("expected lineages version, got %q", run.LineagesVersion)
	}
	if !run.StartedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected started_at %v", run.StartedAt)
	}

	relocs, err := db.GetRelocations()
	if err != nil {
		t.Fatalf("GetRelocations: %v", err)
	}
	if len(relocs) != 2 {
		t.Fatalf("expected 2 relocations, got %d", len(relocs))
	}
	if relocs[0].CanonicalID != "ATL" || !relocs[0].Eligible || relocs[0].Verdict != "improved" {
		t.Errorf("unexpected first relocation: %+v", relocs[0])
	}
	if relocs[0].Delta == nil || *relocs[0].Delta != 0.093 {
		t.Errorf("expected delta 0.093, got %v", relocs[0].Delta)
	}
	if relocs[1].Delta != nil || relocs[1].Eligible {
		t.Errorf("expected ineligible relocation without delta: %+v", relocs[1])
	}
}

func TestArchiveRunReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.ArchiveRun(ctx, sampleArchive("run-1")); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	if err := db.ArchiveRun(ctx, sampleArchive("run-2")); err != nil {
		t.Fatalf("second archive: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Seasons != 2 {
		t.Errorf("expected 2 seasons after replace, got %d", stats.Seasons)
	}
	if stats.InScope != 1 {
		t.Errorf("expected 1 in-scope season, got %d", stats.InScope)
	}
	if stats.Relocations != 2 || stats.Eligible != 1 {
		t.Errorf("unexpected relocation counts: %+v", stats)
	}
	if stats.Diagnostics != 1 {
		t.Errorf("expected 1 diagnostic, got %d", stats.Diagnostics)
	}

	run, err := db.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if run.ID != "run-2" {
		t.Errorf("expected latest run 'run-2', got %q", run.ID)
	}
}

func TestQualityCounts(t *testing.T) {
	db := openTestDB(t)
	if err := db.ArchiveRun(context.Background(), sampleArchive("run-1")); err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}

	counts, err := db.QualityCounts()
	if err != nil {
		t.Fatalf("QualityCounts: %v", err)
	}
	if len(counts) != len(validate.Reasons) {
		t.Errorf("expected a row per reason, got %d", len(counts))
	}
	if counts["missing_fields"] != 1 {
		t.Errorf("expected 1 missing_fields, got %d", counts["missing_fields"])
	}
	if counts["zero_games"] != 0 {
		t.Errorf("expected 0 zero_games, got %d", counts["zero_games"])
	}
}

func TestLastRunEmpty(t *testing.T) {
	db := openTestDB(t)
	run, err := db.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if run != nil {
		t.Errorf("expected no run, got %+v", run)
	}
}

func TestArchiveRunCancelled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.ArchiveRun(ctx, sampleArchive("run-1")); err == nil {
		t.Error("expected error for cancelled context")
	}
}
