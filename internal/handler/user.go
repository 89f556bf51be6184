package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// UserAdminHandler covers the admin-only account management routes.
type UserAdminHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Audit  *repository.AuditRepo
}

// NewUserAdminHandler constructs a UserAdminHandler.
func NewUserAdminHandler(cfg config.Config, users *repository.UserRepo, tokens *repository.TokenRepo, audit *repository.AuditRepo) *UserAdminHandler {
	if users == nil || tokens == nil || audit == nil {
		panic("nil dependency passed to NewUserAdminHandler")
	}
	return &UserAdminHandler{Cfg: cfg, Users: users, Tokens: tokens, Audit: audit}
}

type adminUserPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
}

func toAdminUserPart(u model.User) adminUserPart {
	return adminUserPart{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List handles GET /v1/admin/users.
func (h *UserAdminHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	users, err := h.Users.List(c.Request().Context(), limit, offset)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]adminUserPart, len(users))
	for i, u := range users {
		parts[i] = toAdminUserPart(u)
	}
	return respond(c, http.StatusOK, "users", echo.Map{"users": parts})
}

type setRoleReq struct {
	Role string `json:"role"`
}

// SetRole handles PUT /v1/admin/users/:id/role.
func (h *UserAdminHandler) SetRole(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid user id")
	}
	var req setRoleReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Role != model.RoleUser && req.Role != model.RoleAdmin {
		return respondError(c, http.StatusBadRequest, "role must be USER or ADMIN")
	}
	ctx := c.Request().Context()
	tx, err := h.Users.DB.BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Users.SetRoleTx(ctx, tx, id, req.Role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "user not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: adminID, Action: model.ActionUpdate, Resource: "user",
		ResourceID: strconv.FormatUint(id, 10),
		Detail:     `{"role":"` + req.Role + `"}`,
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	return respond(c, http.StatusOK, "role updated", nil)
}

// Deactivate handles DELETE /v1/admin/users/:id.  The account's refresh
// tokens are revoked so sessions die with it.
func (h *UserAdminHandler) Deactivate(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid user id")
	}
	if id == adminID {
		return respondError(c, http.StatusBadRequest, "cannot deactivate your own account")
	}
	ctx := c.Request().Context()
	tx, err := h.Users.DB.BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Users.DeactivateTx(ctx, tx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "user not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: adminID, Action: model.ActionDelete, Resource: "user",
		ResourceID: strconv.FormatUint(id, 10),
	}); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		c.Logger().Errorf("revoke tokens for user %d: %v", id, err)
	}
	return respond(c, http.StatusOK, "user deactivated", nil)
}
