package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/realtime"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// recordingHub captures broadcasts so tests can assert on fan-out
// without a real hub.
type recordingHub struct {
	mu     sync.Mutex
	events []realtime.Event
	rooms  []string
}

func (r *recordingHub) Broadcast(room string, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, ev)
}

func (r *recordingHub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingHub) roomNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.rooms))
	copy(out, r.rooms)
	return out
}

func newBulkTestHandler(t *testing.T) (*BulkHandler, sqlmock.Sqlmock, *recordingHub, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	hub := &recordingHub{}
	h := NewBulkHandler(
		config.Config{Env: "test"},
		repository.NewTreeRepo(db),
		repository.NewMeasurementRepo(db),
		repository.NewTreeImageRepo(db),
		repository.NewForestRepo(db),
		repository.NewAuditRepo(db),
		hub,
	)
	return h, mock, hub, func() { db.Close() }
}

func bulkContext(method, path, body string, admin bool) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(1))
	if admin {
		c.Set("role", model.RoleAdmin)
	} else {
		c.Set("role", model.RoleUser)
	}
	return c, rec
}

// treeRows builds an empty result set with the trees column layout.
func treeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tree_code", "forest_id", "species", "planted_at", "died_at", "is_alive",
		"latitude", "longitude", "is_active", "deleted_at", "deleted_by", "created_at", "updated_at",
	})
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Errors  []rowError             `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestBulkCreate_TwoTrees(t *testing.T) {
	h, mock, hub, done := newBulkTestHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT 1 FROM forests WHERE id = \? AND is_active = 1`).
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trees`).WillReturnResult(sqlmock.NewResult(100, 2))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"forestId":2,"trees":[
		{"species":"Picea abies","plantedAt":"2023-04-01","location":{"coordinates":[18.07,59.33]}},
		{"species":"Betula pendula","plantedAt":"2023-04-02","location":{"coordinates":[18.08,59.34]}}
	]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/trees/create", body, false)
	if err := h.BulkCreate(c); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success envelope")
	}
	summary := env.Data["summary"].(map[string]interface{})
	if summary["totalCreated"].(float64) != 2 {
		t.Errorf("expected totalCreated=2, got %v", summary["totalCreated"])
	}
	created := env.Data["createdTrees"].([]interface{})
	if len(created) != 2 {
		t.Fatalf("expected 2 created trees, got %d", len(created))
	}
	first := created[0].(map[string]interface{})
	if first["id"].(float64) != 100 {
		t.Errorf("expected first id 100, got %v", first["id"])
	}
	// Fan-out: one event per tree plus the summary to admin and user rooms.
	if hub.count() != 4 {
		t.Errorf("expected 4 broadcasts, got %d", hub.count())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkCreate_ValidationErrorsCollected(t *testing.T) {
	h, _, _, done := newBulkTestHandler(t)
	defer done()

	// Row 0 misses species, row 1 misses location; both must be reported.
	body := `{"forestId":2,"trees":[
		{"plantedAt":"2023-04-01","location":{"coordinates":[18.07,59.33]}},
		{"species":"Betula pendula","plantedAt":"2023-04-02"}
	]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/trees/create", body, false)
	if err := h.BulkCreate(c); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("expected failure envelope")
	}
	if len(env.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %d: %+v", len(env.Errors), env.Errors)
	}
	if env.Errors[0].Index != 0 || env.Errors[0].Field != "species" {
		t.Errorf("unexpected first error: %+v", env.Errors[0])
	}
	if env.Errors[1].Index != 1 || env.Errors[1].Field != "location" {
		t.Errorf("unexpected second error: %+v", env.Errors[1])
	}
}

func TestBulkCreate_SkipValidation(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trees`).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Without skipValidation this row would fail on species and location.
	body := `{"skipValidation":true,"trees":[{"forestId":3}]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/trees/create", body, false)
	if err := h.BulkCreate(c); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkCreate_TooManyRows(t *testing.T) {
	h, _, _, done := newBulkTestHandler(t)
	defer done()

	var sb strings.Builder
	sb.WriteString(`{"forestId":1,"trees":[`)
	for i := 0; i < 1001; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"species":"s%d","location":{"coordinates":[1,2]}}`, i)
	}
	sb.WriteString(`]}`)

	c, rec := bulkContext(http.MethodPost, "/v1/bulk/trees/create", sb.String(), false)
	if err := h.BulkCreate(c); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != msgTooManyTrees {
		t.Errorf("expected %q, got %q", msgTooManyTrees, env.Message)
	}
}

func TestBulkUpdate_NoMatch(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND LOWER\(species\) = LOWER\(\?\) ORDER BY id`).
		WithArgs("nonexistent").
		WillReturnRows(treeRows())
	mock.ExpectRollback()

	body := `{"filter":{"species":"nonexistent"},"updates":{"isAlive":false}}`
	c, rec := bulkContext(http.MethodPut, "/v1/bulk/trees/update", body, false)
	if err := h.BulkUpdate(c); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Message != msgNoTreesMatched {
		t.Errorf("expected %q, got %q", msgNoTreesMatched, env.Message)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkUpdate_WithMeasurement(t *testing.T) {
	h, mock, hub, done := newBulkTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?,\?\) ORDER BY id`).
		WithArgs(uint64(4), uint64(5)).
		WillReturnRows(treeRows().
			AddRow(4, "TR-4", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now).
			AddRow(5, "TR-5", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectExec(`UPDATE trees SET`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO measurements`).WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"treeIds":[4,5],"updates":{"isAlive":true,"addMeasurement":{"heightM":12.5,"health":"good"}}}`
	c, rec := bulkContext(http.MethodPut, "/v1/bulk/trees/update", body, false)
	if err := h.BulkUpdate(c); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	summary := env.Data["summary"].(map[string]interface{})
	if summary["totalMatched"].(float64) != 2 {
		t.Errorf("expected totalMatched=2, got %v", summary["totalMatched"])
	}
	if hub.count() == 0 {
		t.Error("expected post-commit broadcasts")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkDelete_HardRequiresAdmin(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	body := `{"treeIds":[1,2],"hardDelete":true}`
	c, rec := bulkContext(http.MethodDelete, "/v1/bulk/trees/delete", body, false)
	if err := h.BulkDelete(c); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	// The role gate fires before any database access.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no queries expected: %v", err)
	}
}

func TestBulkDelete_Soft(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?,\?\) ORDER BY id`).
		WithArgs(uint64(1), uint64(2)).
		WillReturnRows(treeRows().
			AddRow(1, "TR-1", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now).
			AddRow(2, "TR-2", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectExec(`UPDATE trees SET is_active = 0`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"treeIds":[1,2]}`
	c, rec := bulkContext(http.MethodDelete, "/v1/bulk/trees/delete", body, false)
	if err := h.BulkDelete(c); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	summary := env.Data["summary"].(map[string]interface{})
	if summary["totalDeleted"].(float64) != 2 {
		t.Errorf("expected totalDeleted=2, got %v", summary["totalDeleted"])
	}
	if summary["hardDelete"].(bool) {
		t.Error("expected soft delete")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkDelete_Hard_DeactivatesImages(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?\) ORDER BY id`).
		WithArgs(uint64(9)).
		WillReturnRows(treeRows().AddRow(9, "TR-9", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectExec(`UPDATE tree_images SET is_active = 0`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM trees WHERE id IN \(\?\)`).
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"treeIds":[9],"hardDelete":true}`
	c, rec := bulkContext(http.MethodDelete, "/v1/bulk/trees/delete", body, true)
	if err := h.BulkDelete(c); err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkAddMeasurements_MissingTrees(t *testing.T) {
	h, mock, _, done := newBulkTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?,\?,\?\) ORDER BY id`).
		WithArgs(uint64(1), uint64(2), uint64(3)).
		WillReturnRows(treeRows().
			AddRow(1, "TR-1", 1, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectRollback()

	body := `{"measurements":[
		{"treeId":1,"heightM":10},
		{"treeId":2,"heightM":11},
		{"treeId":3,"heightM":12}
	]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/measurements/add", body, false)
	if err := h.BulkAddMeasurements(c); err != nil {
		t.Fatalf("BulkAddMeasurements: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	missing := env.Data["missingIds"].([]interface{})
	if len(missing) != 2 || missing[0].(float64) != 2 || missing[1].(float64) != 3 {
		t.Errorf("expected missing ids [2 3], got %v", missing)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkAddMeasurements_BroadcastsPerTree(t *testing.T) {
	h, mock, hub, done := newBulkTestHandler(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM trees WHERE is_active = 1 AND id IN \(\?,\?\) ORDER BY id`).
		WithArgs(uint64(1), uint64(2)).
		WillReturnRows(treeRows().
			AddRow(1, "TR-1", 3, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now).
			AddRow(2, "TR-2", 3, "oak", now, nil, true, 59.3, 18.0, true, nil, nil, now, now))
	mock.ExpectExec(`INSERT INTO measurements`).WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"measurements":[{"treeId":1,"heightM":10},{"treeId":2,"heightM":11}]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/measurements/add", body, false)
	if err := h.BulkAddMeasurements(c); err != nil {
		t.Fatalf("BulkAddMeasurements: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rooms := hub.roomNames()
	if len(rooms) != 4 {
		t.Fatalf("expected 4 broadcasts, got %d: %v", len(rooms), rooms)
	}
	perTree := 0
	for _, room := range rooms {
		if room == realtime.ForestRoom(3) {
			perTree++
		}
	}
	if perTree != 2 {
		t.Errorf("expected one forest-room event per tree, got %d (%v)", perTree, rooms)
	}
	if rooms[2] != realtime.AdminRoom || rooms[3] != realtime.UserRoom(1) {
		t.Errorf("expected summary in admin and user rooms, got %v", rooms[2:])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBulkAddMeasurements_InvalidHealth(t *testing.T) {
	h, _, _, done := newBulkTestHandler(t)
	defer done()

	body := `{"measurements":[{"treeId":1,"health":"thriving"}]}`
	c, rec := bulkContext(http.MethodPost, "/v1/bulk/measurements/add", body, false)
	if err := h.BulkAddMeasurements(c); err != nil {
		t.Fatalf("BulkAddMeasurements: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Field != "health" {
		t.Errorf("unexpected errors: %+v", env.Errors)
	}
}
