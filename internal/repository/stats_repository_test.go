package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatsRepo_GetOverview(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM forests WHERE is_active = 1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(is_alive\), 0\) FROM trees WHERE is_active = 1`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "alive"}).AddRow(120, 110))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(m.co2_kg\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"co2"}).AddRow(4321.5))

	repo := NewStatsRepo(db)
	o, err := repo.GetOverview(context.Background())
	if err != nil {
		t.Fatalf("GetOverview: %v", err)
	}
	if o.Forests != 3 || o.Trees != 120 || o.AliveTrees != 110 || o.TotalCO2Kg != 4321.5 {
		t.Errorf("unexpected overview: %+v", o)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestStatsRepo_HealthDistribution(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT m.health, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"health", "count"}).
			AddRow("good", 80).
			AddRow("fair", 25).
			AddRow("critical", 5))

	repo := NewStatsRepo(db)
	dist, err := repo.HealthDistribution(context.Background())
	if err != nil {
		t.Fatalf("HealthDistribution: %v", err)
	}
	if len(dist) != 3 || dist[0].Health != "good" || dist[0].Count != 80 {
		t.Errorf("unexpected distribution: %+v", dist)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestStatsRepo_ForestComparison_IncludesEmptyForests(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT f.id, f.name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "trees", "alive", "co2"}).
			AddRow(1, "North Ridge", 50, 48, 900.0).
			AddRow(2, "New Plot", 0, 0, 0.0))

	repo := NewStatsRepo(db)
	stats, err := repo.ForestComparison(context.Background())
	if err != nil {
		t.Fatalf("ForestComparison: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 forests, got %d", len(stats))
	}
	if stats[1].Trees != 0 || stats[1].ForestName != "New Plot" {
		t.Errorf("empty forest not reported: %+v", stats[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
