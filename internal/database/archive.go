package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/relocstat/internal/validate"
)

var archiveTables = []string{"runs", "validated_seasons", "relocation_results", "quality_report", "diagnostics"}

// ArchiveRun replaces the stored run with a. All tables are rewritten in a
// single transaction.
func (db *DB) ArchiveRun(ctx context.Context, a Archive) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	for _, table := range archiveTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	r := a.Run
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, seasons_path, lineages_version, test_method,
			min_seasons, modern_era_start, total_records, in_scope, relocations, eligible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.SeasonsPath, r.LineagesVersion, r.TestMethod,
		r.MinSeasons, r.ModernEraStart, r.TotalRecords, r.InScope, r.Relocations, r.Eligible,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if err := insertSeasons(ctx, tx, a.Records); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO relocation_results (canonical_id, lineage_name, from_city, to_city, relocation_year,
			pre_seasons, post_seasons, pre_mean, post_mean, delta, eligible, verdict, test,
			test_statistic, degrees_of_freedom, p_value, effect_size, effect_magnitude, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, res := range a.Results {
		if _, err := stmt.ExecContext(ctx,
			res.CanonicalID, res.LineageName, res.FromCity, res.ToCity, res.RelocationYear,
			res.PreSeasons, res.PostSeasons, nullFloat(res.PreMean), nullFloat(res.PostMean), nullFloat(res.Delta),
			res.Eligible, res.Verdict(), nullString(string(res.Test)),
			nullFloat(res.TestStatistic), nullFloat(res.DegreesOfFreedom), nullFloat(res.PValue), nullFloat(res.EffectSize),
			nullString(string(res.EffectMagnitude)), nullString(string(res.Note)),
		); err != nil {
			return fmt.Errorf("inserting relocation %s %d: %w", res.CanonicalID, res.RelocationYear, err)
		}
	}

	for _, reason := range validate.Reasons {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO quality_report (reason, count) VALUES (?, ?)",
			string(reason), a.Report.Excluded[reason],
		); err != nil {
			return fmt.Errorf("inserting quality row: %w", err)
		}
	}

	for _, d := range a.Report.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO diagnostics (kind, canonical_id, year, detail) VALUES (?, ?, ?, ?)",
			string(d.Kind), d.CanonicalID, d.Year, d.Detail,
		); err != nil {
			return fmt.Errorf("inserting diagnostic: %w", err)
		}
	}

	return tx.Commit()
}

func insertSeasons(ctx context.Context, tx *sql.Tx, records []validate.Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO validated_seasons (line, raw_team_id, year, league, wins, losses, games, games_derived,
			canonical_id, city, valid, in_scope, exclusion_reason, win_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Line, r.RawTeamID, nullInt(r.Year), r.League, nullInt(r.Wins), nullInt(r.Losses), nullInt(r.Games),
			r.GamesDerived, nullString(r.CanonicalID), nullString(r.City), r.Valid, r.InScope,
			nullString(string(r.Exclusion)), nullFloat(r.WinPct),
		); err != nil {
			return fmt.Errorf("inserting season line %d: %w", r.Line, err)
		}
	}
	return nil
}

// LastRun returns the archived run, or nil if none has been stored.
func (db *DB) LastRun() (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, started_at, finished_at, seasons_path, lineages_version, test_method,
			min_seasons, modern_era_start, total_records, in_scope, relocations, eligible
		FROM runs ORDER BY finished_at DESC LIMIT 1`,
	)

	var r Run
	var started, finished string
	err := row.Scan(&r.ID, &started, &finished, &r.SeasonsPath, &r.LineagesVersion, &r.TestMethod,
		&r.MinSeasons, &r.ModernEraStart, &r.TotalRecords, &r.InScope, &r.Relocations, &r.Eligible)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &r, nil
}

// GetRelocations returns the archived relocation rows ordered by lineage and
// year.
func (db *DB) GetRelocations() ([]Relocation, error) {
	rows, err := db.conn.Query(
		`SELECT canonical_id, COALESCE(lineage_name, ''), from_city, to_city, relocation_year,
			pre_seasons, post_seasons, delta, p_value, eligible, verdict
		FROM relocation_results ORDER BY canonical_id, relocation_year`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Relocation
	for rows.Next() {
		var r Relocation
		var delta, p sql.NullFloat64
		if err := rows.Scan(&r.CanonicalID, &r.LineageName, &r.FromCity, &r.ToCity, &r.RelocationYear,
			&r.PreSeasons, &r.PostSeasons, &delta, &p, &r.Eligible, &r.Verdict); err != nil {
			return nil, err
		}
		if delta.Valid {
			r.Delta = &delta.Float64
		}
		if p.Valid {
			r.PValue = &p.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns aggregate archive counts.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM validated_seasons", &s.Seasons},
		{"SELECT COUNT(*) FROM validated_seasons WHERE in_scope = 1", &s.InScope},
		{"SELECT COUNT(*) FROM relocation_results", &s.Relocations},
		{"SELECT COUNT(*) FROM relocation_results WHERE eligible = 1", &s.Eligible},
		{"SELECT COUNT(*) FROM diagnostics", &s.Diagnostics},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// QualityCounts returns the archived per-reason exclusion counts.
func (db *DB) QualityCounts() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT reason, count FROM quality_report")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
