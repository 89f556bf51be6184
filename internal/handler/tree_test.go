package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

func newTreeTestHandler(t *testing.T) (*TreeHandler, sqlmock.Sqlmock, *recordingHub, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	hub := &recordingHub{}
	h := NewTreeHandler(
		config.Config{Env: "test"},
		repository.NewTreeRepo(db),
		repository.NewMeasurementRepo(db),
		repository.NewTreeImageRepo(db),
		repository.NewAuditRepo(db),
		hub,
	)
	return h, mock, hub, func() { db.Close() }
}

func TestTreeDelete_AuditCommitsWithMutation(t *testing.T) {
	h, mock, hub, done := newTreeTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE id = \?`).
		WithArgs(uint64(6)).
		WillReturnRows(treeRows().
			AddRow(6, "TR-6", 2, "pine", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE trees SET is_active = 0`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(uint64(1), "delete", "tree", "6", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, rec := bulkContext(http.MethodDelete, "/v1/trees/6", "", true)
	c.SetParamNames("id")
	c.SetParamValues("6")
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if hub.count() != 1 {
		t.Errorf("expected one post-commit broadcast, got %d", hub.count())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTreeAddMeasurement_AuditCommitsWithMutation(t *testing.T) {
	h, mock, hub, done := newTreeTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE id = \?`).
		WithArgs(uint64(3)).
		WillReturnRows(treeRows().
			AddRow(3, "TR-3", 2, "pine", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO measurements`).WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(uint64(1), "add_measurement", "measurement", "41", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"heightM":14.2,"health":"good"}`
	c, rec := bulkContext(http.MethodPost, "/v1/trees/3/measurements", body, false)
	c.SetParamNames("id")
	c.SetParamValues("3")
	if err := h.AddMeasurement(c); err != nil {
		t.Fatalf("AddMeasurement: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if hub.count() != 1 {
		t.Errorf("expected one post-commit broadcast, got %d", hub.count())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
