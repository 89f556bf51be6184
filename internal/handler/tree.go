package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/realtime"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// TreeHandler serves single-tree CRUD and the per-tree measurement
// endpoints.  Batch writes live in BulkHandler.
type TreeHandler struct {
	Cfg      config.Config
	Trees    *repository.TreeRepo
	Measures *repository.MeasurementRepo
	Images   *repository.TreeImageRepo
	Audit    *repository.AuditRepo
	Events   realtime.Broadcaster
}

// NewTreeHandler constructs a TreeHandler.
func NewTreeHandler(cfg config.Config, trees *repository.TreeRepo, measures *repository.MeasurementRepo, images *repository.TreeImageRepo, audit *repository.AuditRepo, events realtime.Broadcaster) *TreeHandler {
	if trees == nil || measures == nil || images == nil || audit == nil || events == nil {
		panic("nil dependency passed to NewTreeHandler")
	}
	return &TreeHandler{Cfg: cfg, Trees: trees, Measures: measures, Images: images, Audit: audit, Events: events}
}

type treeDetail struct {
	ID        uint64   `json:"id"`
	TreeCode  string   `json:"treeCode"`
	ForestID  uint64   `json:"forestId"`
	Species   string   `json:"species"`
	PlantedAt string   `json:"plantedAt"`
	DiedAt    string   `json:"diedAt,omitempty"`
	IsAlive   bool     `json:"isAlive"`
	Location  geoPoint `json:"location"`
	IsActive  bool     `json:"isActive"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func toTreeDetail(t model.Tree) treeDetail {
	d := treeDetail{
		ID:        t.ID,
		TreeCode:  t.TreeCode,
		ForestID:  t.ForestID,
		Species:   t.Species,
		PlantedAt: t.PlantedAt.UTC().Format("2006-01-02"),
		IsAlive:   t.IsAlive,
		Location:  geoPoint{Coordinates: []float64{t.Longitude, t.Latitude}},
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.DiedAt != nil {
		d.DiedAt = t.DiedAt.UTC().Format("2006-01-02")
	}
	return d
}

type measurementPart struct {
	ID         uint64   `json:"id"`
	TreeID     uint64   `json:"treeId"`
	HeightM    *float64 `json:"heightM,omitempty"`
	DiameterCM *float64 `json:"diameterCm,omitempty"`
	Health     *string  `json:"health,omitempty"`
	CO2Kg      *float64 `json:"co2Kg,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	MeasuredBy *uint64  `json:"measuredBy,omitempty"`
	MeasuredAt string   `json:"measuredAt"`
}

func toMeasurementPart(m model.Measurement) measurementPart {
	return measurementPart{
		ID:         m.ID,
		TreeID:     m.TreeID,
		HeightM:    m.HeightM,
		DiameterCM: m.DiameterCM,
		Health:     m.Health,
		CO2Kg:      m.CO2Kg,
		Notes:      m.Notes,
		MeasuredBy: m.MeasuredBy,
		MeasuredAt: m.MeasuredAt.UTC().Format(time.RFC3339),
	}
}

// listFilter builds a TreeFilter from list query parameters.
func listFilter(c echo.Context) (repository.TreeFilter, error) {
	var f repository.TreeFilter
	if v := c.QueryParam("forestId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.ForestIDs = []uint64{id}
	}
	f.Species = c.QueryParam("species")
	if v := c.QueryParam("isAlive"); v != "" {
		alive := v == "true" || v == "1"
		f.IsAlive = &alive
	}
	if v := c.QueryParam("plantedAfter"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.PlantedAfter = &t
	}
	if v := c.QueryParam("plantedBefore"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.PlantedBefore = &t
	}
	return f, nil
}

// List handles GET /v1/trees.  Soft-deleted trees are hidden unless an
// admin asks for them with includeDeleted=true.
func (h *TreeHandler) List(c echo.Context) error {
	f, err := listFilter(c)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid filter parameter")
	}
	if c.QueryParam("includeDeleted") == "true" && isAdmin(c) {
		f.IncludeDead = true
	}
	limit, offset := pageParams(c)
	trees, err := h.Trees.List(c.Request().Context(), f, limit, offset)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]treeDetail, len(trees))
	for i, t := range trees {
		parts[i] = toTreeDetail(t)
	}
	return respond(c, http.StatusOK, "trees", echo.Map{
		"trees":  parts,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /v1/trees/:id, returning the tree with its full
// measurement history and active images.
func (h *TreeHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	ctx := c.Request().Context()
	t, err := h.Trees.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if !t.IsActive && !isAdmin(c) {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	ms, err := h.Measures.ListByTree(ctx, id)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	imgs, err := h.Images.ListByTree(ctx, id)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	mparts := make([]measurementPart, len(ms))
	for i, m := range ms {
		mparts[i] = toMeasurementPart(m)
	}
	iparts := make([]imagePart, len(imgs))
	for i, img := range imgs {
		iparts[i] = toImagePart(img)
	}
	return respond(c, http.StatusOK, "tree", echo.Map{
		"tree":         toTreeDetail(*t),
		"measurements": mparts,
		"images":       iparts,
	})
}

// Create handles POST /v1/trees.
func (h *TreeHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req bulkTreeInput
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Species == "" {
		return respondError(c, http.StatusBadRequest, "species is required")
	}
	if req.ForestID == 0 {
		return respondError(c, http.StatusBadRequest, "forestId is required")
	}
	if req.Location == nil || len(req.Location.Coordinates) != 2 {
		return respondError(c, http.StatusBadRequest, "location coordinates [lng, lat] are required")
	}
	t := model.Tree{
		TreeCode:  req.TreeCode,
		ForestID:  req.ForestID,
		Species:   req.Species,
		IsAlive:   true,
		Longitude: req.Location.Coordinates[0],
		Latitude:  req.Location.Coordinates[1],
		PlantedAt: time.Now().UTC(),
	}
	if req.IsAlive != nil {
		t.IsAlive = *req.IsAlive
	}
	if req.PlantedAt != "" {
		p, err := parseDate(req.PlantedAt)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid plantedAt date")
		}
		t.PlantedAt = p
	}
	if t.TreeCode == "" {
		t.TreeCode = newTreeCode()
	}
	ctx := c.Request().Context()
	tx, err := h.Trees.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Trees.CreateTx(ctx, tx, &t); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return respondError(c, http.StatusConflict, "tree code already exists")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionCreate, Resource: "tree",
		ResourceID: strconv.FormatUint(t.ID, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	h.Events.Broadcast(realtime.ForestRoom(t.ForestID), realtime.NewEvent("tree.created", realtime.TreeEvent{
		TreeID: t.ID, TreeCode: t.TreeCode, ForestID: t.ForestID, Species: t.Species,
	}))
	return respond(c, http.StatusCreated, "tree created", echo.Map{"tree": toTreeDetail(t)})
}

// Update handles PUT /v1/trees/:id.  Only the provided fields change.
func (h *TreeHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	var req bulkUpdatesInput
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	var upd repository.TreeUpdates
	upd.Species = req.Species
	upd.ForestID = req.ForestID
	upd.IsAlive = req.IsAlive
	if req.DiedAt != nil {
		t, err := parseDate(*req.DiedAt)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid diedAt date")
		}
		upd.DiedAt = &t
	}
	if upd.IsEmpty() {
		return respondError(c, http.StatusBadRequest, "no fields to update")
	}
	ctx := c.Request().Context()
	tx, err := h.Trees.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Trees.UpdateTx(ctx, tx, id, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "tree not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionUpdate, Resource: "tree",
		ResourceID: strconv.FormatUint(id, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	t, err := h.Trees.GetByID(ctx, id)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	h.Events.Broadcast(realtime.ForestRoom(t.ForestID), realtime.NewEvent("tree.updated", realtime.TreeEvent{
		TreeID: t.ID, TreeCode: t.TreeCode, ForestID: t.ForestID, Species: t.Species,
	}))
	return respond(c, http.StatusOK, "tree updated", echo.Map{"tree": toTreeDetail(*t)})
}

// Delete handles DELETE /v1/trees/:id (soft delete; the row and its
// measurements survive).
func (h *TreeHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	ctx := c.Request().Context()
	t, err := h.Trees.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	tx, err := h.Trees.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Trees.SoftDeleteTx(ctx, tx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "tree not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionDelete, Resource: "tree",
		ResourceID: strconv.FormatUint(id, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	h.Events.Broadcast(realtime.ForestRoom(t.ForestID), realtime.NewEvent("tree.deleted", realtime.TreeEvent{
		TreeID: t.ID, TreeCode: t.TreeCode, ForestID: t.ForestID, Species: t.Species,
	}))
	return respond(c, http.StatusOK, "tree deleted", nil)
}

// AddMeasurement handles POST /v1/trees/:id/measurements, appending one
// observation to the tree's history.
func (h *TreeHandler) AddMeasurement(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	var req measurementInput
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if !req.hasValue() {
		return respondError(c, http.StatusBadRequest, "at least one measurement value is required")
	}
	if req.Health != nil && !model.ValidHealth(*req.Health) {
		return respondError(c, http.StatusBadRequest, "invalid health value")
	}
	ctx := c.Request().Context()
	t, err := h.Trees.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if !t.IsActive {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	measuredAt := time.Now().UTC()
	if req.MeasuredAt != "" {
		p, err := parseDate(req.MeasuredAt)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid measuredAt date")
		}
		measuredAt = p
	}
	m := model.Measurement{
		TreeID:     id,
		HeightM:    req.HeightM,
		DiameterCM: req.DiameterCM,
		Health:     req.Health,
		CO2Kg:      req.CO2Kg,
		Notes:      req.Notes,
		MeasuredBy: &userID,
		MeasuredAt: measuredAt,
	}
	tx, err := h.Trees.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Measures.InsertTx(ctx, tx, &m); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionAddMeasurement, Resource: "measurement",
		ResourceID: strconv.FormatUint(m.ID, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	h.Events.Broadcast(realtime.ForestRoom(t.ForestID), realtime.NewEvent("measurement.added", toMeasurementPart(m)))
	return respond(c, http.StatusCreated, "measurement recorded", echo.Map{"measurement": toMeasurementPart(m)})
}

// ListMeasurements handles GET /v1/trees/:id/measurements.
func (h *TreeHandler) ListMeasurements(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	ctx := c.Request().Context()
	if _, err := h.Trees.GetByID(ctx, id); errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "tree not found")
	} else if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	ms, err := h.Measures.ListByTree(ctx, id)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]measurementPart, len(ms))
	for i, m := range ms {
		parts[i] = toMeasurementPart(m)
	}
	return respond(c, http.StatusOK, "measurements", echo.Map{"measurements": parts})
}
