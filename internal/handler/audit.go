package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// AuditHandler exposes the audit trail to administrators.  The routes
// behind it are mounted with the ADMIN role guard.
type AuditHandler struct {
	Cfg   config.Config
	Audit *repository.AuditRepo
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(cfg config.Config, audit *repository.AuditRepo) *AuditHandler {
	if audit == nil {
		panic("nil dependency passed to NewAuditHandler")
	}
	return &AuditHandler{Cfg: cfg, Audit: audit}
}

type auditPart struct {
	ID         uint64          `json:"id"`
	UserID     uint64          `json:"userId"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  string          `json:"createdAt"`
}

func toAuditPart(a model.AuditLog) auditPart {
	p := auditPart{
		ID:         a.ID,
		UserID:     a.UserID,
		Action:     a.Action,
		Resource:   a.Resource,
		ResourceID: a.ResourceID,
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.Detail != "" && json.Valid([]byte(a.Detail)) {
		p.Detail = json.RawMessage(a.Detail)
	}
	return p
}

// List handles GET /v1/audit with optional userId, action and resource
// filters plus limit/offset paging.
func (h *AuditHandler) List(c echo.Context) error {
	var f repository.AuditFilter
	if v := c.QueryParam("userId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid userId")
		}
		f.UserID = id
	}
	f.Action = c.QueryParam("action")
	f.Resource = c.QueryParam("resource")
	limit, offset := pageParams(c)
	entries, err := h.Audit.List(c.Request().Context(), f, limit, offset)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]auditPart, len(entries))
	for i, a := range entries {
		parts[i] = toAuditPart(a)
	}
	return respond(c, http.StatusOK, "audit entries", echo.Map{
		"entries": parts,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get handles GET /v1/audit/:id.
func (h *AuditHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid audit id")
	}
	a, err := h.Audit.GetByID(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "audit entry not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	return respond(c, http.StatusOK, "audit entry", echo.Map{"entry": toAuditPart(*a)})
}
