package repository // repository for dashboard aggregation queries

import (
	"context"
	"database/sql"
)

// StatsRepo runs the read-only aggregation queries behind the dashboard
// endpoints.  All queries operate on active trees only and treat the
// latest measurement per tree (by measured_at, then id) as current state.
type StatsRepo struct {
	db *sql.DB
}

// NewStatsRepo constructs a StatsRepo given a DB handle.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Overview aggregates headline numbers for the dashboard landing view.
type Overview struct {
	Forests    int64   `json:"forests"`
	Trees      int64   `json:"trees"`
	AliveTrees int64   `json:"alive_trees"`
	TotalCO2Kg float64 `json:"total_co2_kg"`
}

// GetOverview returns forest/tree counts and the total absorbed CO2
// across all measurements of active trees.
func (r *StatsRepo) GetOverview(ctx context.Context) (Overview, error) {
	var o Overview
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM forests WHERE is_active = 1").Scan(&o.Forests); err != nil {
		return o, err
	}
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_alive), 0) FROM trees WHERE is_active = 1").Scan(&o.Trees, &o.AliveTrees); err != nil {
		return o, err
	}
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(m.co2_kg), 0)
		FROM measurements m
		JOIN trees t ON t.id = m.tree_id
		WHERE t.is_active = 1`).Scan(&o.TotalCO2Kg)
	return o, err
}

// SpeciesCount is one bucket of the species distribution.
type SpeciesCount struct {
	Species string `json:"species"`
	Count   int64  `json:"count"`
}

// SpeciesDistribution groups active trees by species, largest first.
func (r *StatsRepo) SpeciesDistribution(ctx context.Context) ([]SpeciesCount, error) {
	const q = `SELECT species, COUNT(*) FROM trees WHERE is_active = 1 GROUP BY species ORDER BY COUNT(*) DESC, species`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SpeciesCount, 0)
	for rows.Next() {
		var s SpeciesCount
		if err := rows.Scan(&s.Species, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HealthCount is one bucket of the health distribution, derived from each
// tree's most recent measurement.
type HealthCount struct {
	Health string `json:"health"`
	Count  int64  `json:"count"`
}

// HealthDistribution groups active trees by the health value of their
// latest measurement.  Trees without any health reading are skipped.
func (r *StatsRepo) HealthDistribution(ctx context.Context) ([]HealthCount, error) {
	// The subquery pins the latest measurement row per tree; ties on
	// measured_at resolve to the highest id (latest insert).
	const q = `
		SELECT m.health, COUNT(*)
		FROM measurements m
		JOIN trees t ON t.id = m.tree_id AND t.is_active = 1
		WHERE m.health IS NOT NULL
		  AND m.id = (
			SELECT m2.id FROM measurements m2
			WHERE m2.tree_id = m.tree_id
			ORDER BY m2.measured_at DESC, m2.id DESC LIMIT 1
		  )
		GROUP BY m.health
		ORDER BY COUNT(*) DESC, m.health`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]HealthCount, 0)
	for rows.Next() {
		var h HealthCount
		if err := rows.Scan(&h.Health, &h.Count); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TreeHeight is the latest recorded height of one tree.
type TreeHeight struct {
	TreeID   uint64  `json:"tree_id"`
	TreeCode string  `json:"tree_code"`
	Species  string  `json:"species"`
	HeightM  float64 `json:"height_m"`
}

// LatestHeights returns the most recent height reading per active tree,
// tallest first, capped at limit rows.
func (r *StatsRepo) LatestHeights(ctx context.Context, limit int) ([]TreeHeight, error) {
	const q = `
		SELECT t.id, t.tree_code, t.species, m.height_m
		FROM trees t
		JOIN measurements m ON m.tree_id = t.id
		WHERE t.is_active = 1
		  AND m.height_m IS NOT NULL
		  AND m.id = (
			SELECT m2.id FROM measurements m2
			WHERE m2.tree_id = t.id AND m2.height_m IS NOT NULL
			ORDER BY m2.measured_at DESC, m2.id DESC LIMIT 1
		  )
		ORDER BY m.height_m DESC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TreeHeight, 0)
	for rows.Next() {
		var h TreeHeight
		if err := rows.Scan(&h.TreeID, &h.TreeCode, &h.Species, &h.HeightM); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ForestStats compares forests by tree population and absorbed CO2.
type ForestStats struct {
	ForestID   uint64  `json:"forest_id"`
	ForestName string  `json:"forest_name"`
	Trees      int64   `json:"trees"`
	AliveTrees int64   `json:"alive_trees"`
	TotalCO2Kg float64 `json:"total_co2_kg"`
}

// ForestComparison aggregates per-forest tree counts and CO2 totals for
// all active forests, including forests with no trees yet.
func (r *StatsRepo) ForestComparison(ctx context.Context) ([]ForestStats, error) {
	const q = `
		SELECT f.id, f.name,
		       COUNT(t.id),
		       COALESCE(SUM(t.is_alive), 0),
		       COALESCE((
		           SELECT SUM(m.co2_kg) FROM measurements m
		           JOIN trees t2 ON t2.id = m.tree_id
		           WHERE t2.forest_id = f.id AND t2.is_active = 1
		       ), 0)
		FROM forests f
		LEFT JOIN trees t ON t.forest_id = f.id AND t.is_active = 1
		WHERE f.is_active = 1
		GROUP BY f.id, f.name
		ORDER BY f.name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ForestStats, 0)
	for rows.Next() {
		var s ForestStats
		if err := rows.Scan(&s.ForestID, &s.ForestName, &s.Trees, &s.AliveTrees, &s.TotalCO2Kg); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
