package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "run archive tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    seasons_path TEXT,
    lineages_version TEXT,
    test_method TEXT NOT NULL,
    min_seasons INTEGER NOT NULL,
    modern_era_start INTEGER NOT NULL,
    total_records INTEGER NOT NULL,
    in_scope INTEGER NOT NULL,
    relocations INTEGER NOT NULL,
    eligible INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS validated_seasons (
    line INTEGER,
    raw_team_id TEXT,
    year INTEGER,
    league TEXT,
    wins INTEGER,
    losses INTEGER,
    games INTEGER,
    games_derived INTEGER DEFAULT 0,
    canonical_id TEXT,
    city TEXT,
    valid INTEGER NOT NULL,
    in_scope INTEGER NOT NULL,
    exclusion_reason TEXT,
    win_pct REAL
);

CREATE TABLE IF NOT EXISTS relocation_results (
    canonical_id TEXT NOT NULL,
    lineage_name TEXT,
    from_city TEXT NOT NULL,
    to_city TEXT NOT NULL,
    relocation_year INTEGER NOT NULL,
    pre_seasons INTEGER NOT NULL,
    post_seasons INTEGER NOT NULL,
    pre_mean REAL,
    post_mean REAL,
    delta REAL,
    eligible INTEGER NOT NULL,
    verdict TEXT NOT NULL,
    test TEXT,
    test_statistic REAL,
    degrees_of_freedom REAL,
    p_value REAL,
    effect_size REAL,
    effect_magnitude TEXT,
    note TEXT,
    PRIMARY KEY (canonical_id, relocation_year)
);

CREATE TABLE IF NOT EXISTS quality_report (
    reason TEXT PRIMARY KEY,
    count INTEGER NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "add diagnostics table and season lookup index",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS diagnostics (
    kind TEXT NOT NULL,
    canonical_id TEXT,
    year INTEGER,
    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_validated_seasons_lineage_year
    ON validated_seasons(canonical_id, year);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
