package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

func newExportTestHandler(t *testing.T) (*ExportHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h := NewExportHandler(config.Config{Env: "test"},
		repository.NewTreeRepo(db),
		repository.NewMeasurementRepo(db),
	)
	return h, mock, func() { db.Close() }
}

func TestExportTrees_StreamsCSV(t *testing.T) {
	h, mock, done := newExportTestHandler(t)
	defer done()

	planted := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 ORDER BY id`).
		WillReturnRows(treeRows().
			AddRow(1, "TR-1", 2, "Picea abies", planted, nil, true, 59.33, 18.07, true, nil, nil, planted, planted))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/exports/trees.csv", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Trees(c); err != nil {
		t.Fatalf("Trees: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv content type, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "id,tree_code,forest_id") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "TR-1") || !strings.Contains(lines[1], "Picea abies") {
		t.Errorf("unexpected row: %q", lines[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
