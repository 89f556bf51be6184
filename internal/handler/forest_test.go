package handler

import (
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

func newForestTestHandler(t *testing.T) (*ForestHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h := NewForestHandler(config.Config{Env: "test"}, repository.NewForestRepo(db), repository.NewAuditRepo(db))
	return h, mock, func() { db.Close() }
}

func TestForestCreate_AuditCommitsWithMutation(t *testing.T) {
	h, mock, done := newForestTestHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO forests`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(uint64(1), "create", "forest", "7", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"name":"Northern Range","region":"Norrbotten","area":120.5}`
	c, rec := bulkContext(http.MethodPost, "/v1/forests", body, true)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	forest := env.Data["forest"].(map[string]interface{})
	if forest["id"].(float64) != 7 {
		t.Errorf("expected forest id 7, got %v", forest["id"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestForestDelete_NotFoundRollsBack(t *testing.T) {
	h, mock, done := newForestTestHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE forests SET is_active = 0`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	c, rec := bulkContext(http.MethodDelete, "/v1/forests/99", "", true)
	c.SetParamNames("id")
	c.SetParamValues("99")
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
