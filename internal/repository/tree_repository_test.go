package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/forestwatch/forest-monitor/internal/model"
)

func newMockTx(t *testing.T) (*TreeRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewTreeRepo(db), mock, func() { db.Close() }
}

func TestTreeRepo_InsertBulkTx(t *testing.T) {
	repo, mock, done := newMockTx(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trees \(tree_code, forest_id, species, planted_at, is_alive, latitude, longitude\) VALUES \(\?, \?, \?, \?, \?, \?, \?\),\(\?, \?, \?, \?, \?, \?, \?\)`).
		WillReturnResult(sqlmock.NewResult(10, 2))

	tx, err := repo.DB().BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	planted := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	ids, err := repo.InsertBulkTx(context.Background(), tx, []model.Tree{
		{TreeCode: "TR-A", ForestID: 1, Species: "Picea abies", PlantedAt: planted, IsAlive: true},
		{TreeCode: "TR-B", ForestID: 1, Species: "Betula pendula", PlantedAt: planted, IsAlive: true},
	})
	if err != nil {
		t.Fatalf("InsertBulkTx: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Errorf("expected consecutive ids [10 11], got %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTreeRepo_InsertBulkTx_Empty(t *testing.T) {
	repo, mock, done := newMockTx(t)
	defer done()

	mock.ExpectBegin()
	tx, _ := repo.DB().BeginTx(context.Background(), nil)
	ids, err := repo.InsertBulkTx(context.Background(), tx, nil)
	if err != nil || ids != nil {
		t.Errorf("empty insert should be a no-op, got ids=%v err=%v", ids, err)
	}
}

func treeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tree_code", "forest_id", "species", "planted_at", "died_at", "is_alive",
		"latitude", "longitude", "is_active", "deleted_at", "deleted_by", "created_at", "updated_at",
	})
}

func TestTreeRepo_ResolveSelectionTx_ByIDs(t *testing.T) {
	repo, mock, done := newMockTx(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?,\?\) ORDER BY id`).
		WithArgs(uint64(4), uint64(9)).
		WillReturnRows(treeRows().
			AddRow(4, "TR-4", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now).
			AddRow(9, "TR-9", 2, "birch", now, nil, true, 59.4, 18.1, true, nil, nil, now, now))

	tx, _ := repo.DB().BeginTx(context.Background(), nil)
	trees, err := repo.ResolveSelectionTx(context.Background(), tx, []uint64{4, 9}, TreeFilter{})
	if err != nil {
		t.Fatalf("ResolveSelectionTx: %v", err)
	}
	if len(trees) != 2 || trees[0].ID != 4 || trees[1].ID != 9 {
		t.Errorf("unexpected trees: %+v", trees)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTreeRepo_ResolveSelectionTx_ByFilter(t *testing.T) {
	repo, mock, done := newMockTx(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND LOWER\(species\) = LOWER\(\?\) ORDER BY id`).
		WithArgs("oak").
		WillReturnRows(treeRows().
			AddRow(4, "TR-4", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))

	tx, _ := repo.DB().BeginTx(context.Background(), nil)
	trees, err := repo.ResolveSelectionTx(context.Background(), tx, nil, TreeFilter{Species: "oak"})
	if err != nil {
		t.Fatalf("ResolveSelectionTx: %v", err)
	}
	if len(trees) != 1 || trees[0].Species != "oak" {
		t.Errorf("unexpected trees: %+v", trees)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTreeRepo_SoftDeleteBulkTx(t *testing.T) {
	repo, mock, done := newMockTx(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE trees SET is_active = 0, deleted_at = NOW\(\), deleted_by = \? WHERE is_active = 1 AND id IN \(\?,\?,\?\)`).
		WithArgs(uint64(7), uint64(1), uint64(2), uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	tx, _ := repo.DB().BeginTx(context.Background(), nil)
	n, err := repo.SoftDeleteBulkTx(context.Background(), tx, []uint64{1, 2, 3}, 7)
	if err != nil {
		t.Fatalf("SoftDeleteBulkTx: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTreeUpdates_SetClause(t *testing.T) {
	species := "oak"
	alive := false
	upd := TreeUpdates{Species: &species, IsAlive: &alive}
	set, args := upd.setClause()
	if set == "" {
		t.Fatal("expected non-empty set clause")
	}
	for _, want := range []string{"species = ?", "is_alive = ?", "updated_at = NOW()"} {
		if !strings.Contains(set, want) {
			t.Errorf("set clause %q missing %q", set, want)
		}
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %v", args)
	}
	if !(TreeUpdates{}).IsEmpty() {
		t.Error("zero updates should be empty")
	}
	if upd.IsEmpty() {
		t.Error("populated updates should not be empty")
	}
}
