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
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// ForestHandler serves forest CRUD.  Each mutation commits together
// with its audit entry; reads write nothing.
type ForestHandler struct {
	Cfg     config.Config
	Forests *repository.ForestRepo
	Audit   *repository.AuditRepo
}

// NewForestHandler constructs a ForestHandler.
func NewForestHandler(cfg config.Config, forests *repository.ForestRepo, audit *repository.AuditRepo) *ForestHandler {
	if forests == nil || audit == nil {
		panic("nil dependency passed to NewForestHandler")
	}
	return &ForestHandler{Cfg: cfg, Forests: forests, Audit: audit}
}

type forestReq struct {
	Name          string    `json:"name"`
	Region        string    `json:"region"`
	Location      *geoPoint `json:"location"`
	Area          *float64  `json:"area"`
	AreaUnit      string    `json:"areaUnit"`
	EstablishedAt string    `json:"establishedAt"`
}

type forestPart struct {
	ID            uint64  `json:"id"`
	Name          string  `json:"name"`
	Region        string  `json:"region"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Area          float64 `json:"area"`
	AreaUnit      string  `json:"areaUnit"`
	EstablishedAt string  `json:"establishedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

func toForestPart(f model.Forest) forestPart {
	p := forestPart{
		ID:        f.ID,
		Name:      f.Name,
		Region:    f.Region,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Area:      f.Area,
		AreaUnit:  f.AreaUnit,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: f.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if f.EstablishedAt != nil {
		p.EstablishedAt = f.EstablishedAt.UTC().Format("2006-01-02")
	}
	return p
}

// List handles GET /v1/forests.
func (h *ForestHandler) List(c echo.Context) error {
	forests, err := h.Forests.List(c.Request().Context())
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]forestPart, len(forests))
	for i, f := range forests {
		parts[i] = toForestPart(f)
	}
	return respond(c, http.StatusOK, "forests", echo.Map{"forests": parts})
}

// Get handles GET /v1/forests/:id.
func (h *ForestHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid forest id")
	}
	f, err := h.Forests.GetByID(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "forest not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "forest", echo.Map{"forest": toForestPart(*f)})
}

// apply copies the non-empty request fields onto f.
func (req *forestReq) apply(f *model.Forest) error {
	if req.Name != "" {
		f.Name = req.Name
	}
	if req.Region != "" {
		f.Region = req.Region
	}
	if req.Location != nil && len(req.Location.Coordinates) == 2 {
		f.Longitude = req.Location.Coordinates[0]
		f.Latitude = req.Location.Coordinates[1]
	}
	if req.Area != nil {
		f.Area = *req.Area
	}
	if req.AreaUnit != "" {
		f.AreaUnit = req.AreaUnit
	}
	if req.EstablishedAt != "" {
		t, err := parseDate(req.EstablishedAt)
		if err != nil {
			return err
		}
		f.EstablishedAt = &t
	}
	return nil
}

// Create handles POST /v1/forests.
func (h *ForestHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req forestReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return respondError(c, http.StatusBadRequest, "name is required")
	}
	f := model.Forest{AreaUnit: "ha"}
	if err := req.apply(&f); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid establishedAt date")
	}
	ctx := c.Request().Context()
	tx, err := h.Forests.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Forests.CreateTx(ctx, tx, &f); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionCreate, Resource: "forest",
		ResourceID: strconv.FormatUint(f.ID, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	return respond(c, http.StatusCreated, "forest created", echo.Map{"forest": toForestPart(f)})
}

// Update handles PUT /v1/forests/:id.
func (h *ForestHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid forest id")
	}
	var req forestReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	f, err := h.Forests.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "forest not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := req.apply(f); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid establishedAt date")
	}
	tx, err := h.Forests.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Forests.UpdateTx(ctx, tx, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "forest not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionUpdate, Resource: "forest",
		ResourceID: strconv.FormatUint(f.ID, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	return respond(c, http.StatusOK, "forest updated", echo.Map{"forest": toForestPart(*f)})
}

// Delete handles DELETE /v1/forests/:id (soft delete only).
func (h *ForestHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid forest id")
	}
	ctx := c.Request().Context()
	tx, err := h.Forests.DB().BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Forests.SoftDeleteTx(ctx, tx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "forest not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionDelete, Resource: "forest",
		ResourceID: strconv.FormatUint(id, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	return respond(c, http.StatusOK, "forest deleted", nil)
}
