package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/forestwatch/forest-monitor/internal/model"
)

func TestAuditRepo_InsertTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_logs \(user_id, action, resource, resource_id, detail\) VALUES \(\?,\?,\?,\?,\?\)`).
		WithArgs(uint64(5), "bulk_create", "tree", "", `{"count":2}`).
		WillReturnResult(sqlmock.NewResult(99, 1))
	mock.ExpectCommit()

	repo := NewAuditRepo(db)
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	a := &model.AuditLog{UserID: 5, Action: "bulk_create", Resource: "tree", Detail: `{"count":2}`}
	if err := repo.InsertTx(context.Background(), tx, a); err != nil {
		t.Fatalf("InsertTx: %v", err)
	}
	if a.ID != 99 {
		t.Errorf("expected generated id 99, got %d", a.ID)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAuditRepo_BulkOpsSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	last := cutoff.Add(3 * time.Hour)
	mock.ExpectQuery(`SELECT action, COUNT\(\*\), MAX\(created_at\)`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count", "last"}).
			AddRow("bulk_create", 4, last).
			AddRow("bulk_delete", 1, last))

	repo := NewAuditRepo(db)
	ops, err := repo.BulkOpsSince(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("BulkOpsSince: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(ops))
	}
	if ops[0].Action != "bulk_create" || ops[0].Count != 4 {
		t.Errorf("unexpected first summary: %+v", ops[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAuditRepo_List_Filtered(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, action, resource, resource_id, detail, created_at FROM audit_logs WHERE 1=1 AND user_id = \? AND action = \? ORDER BY id DESC LIMIT \? OFFSET \?`).
		WithArgs(uint64(5), "bulk_create", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "detail", "created_at"}).
			AddRow(12, 5, "bulk_create", "tree", "", "{}", now))

	repo := NewAuditRepo(db)
	entries, err := repo.List(context.Background(), AuditFilter{UserID: 5, Action: "bulk_create"}, 50, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 12 {
		t.Errorf("unexpected entries: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
