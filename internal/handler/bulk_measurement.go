package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/metrics"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

type bulkMeasureReq struct {
	Measurements []measurementInput `json:"measurements"`
}

// BulkAddMeasurements handles POST /v1/bulk/measurements/add.  Rows are
// validated exhaustively, then every referenced tree is checked in one
// query; a single missing tree fails the whole batch with the complete
// list of missing ids so nothing is partially recorded.
func (h *BulkHandler) BulkAddMeasurements(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req bulkMeasureReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.Measurements) == 0 {
		return respondError(c, http.StatusBadRequest, "measurements array is required")
	}
	if len(req.Measurements) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}

	now := time.Now().UTC()
	rows := make([]model.Measurement, len(req.Measurements))
	var rowErrs []rowError
	for i, in := range req.Measurements {
		if in.TreeID == 0 {
			rowErrs = append(rowErrs, rowError{Index: i, Field: "treeId", Message: "treeId is required"})
		}
		if !in.hasValue() {
			rowErrs = append(rowErrs, rowError{Index: i, Field: "measurements", Message: "at least one measurement value is required"})
		}
		if in.Health != nil && !model.ValidHealth(*in.Health) {
			rowErrs = append(rowErrs, rowError{Index: i, Field: "health", Message: "invalid health value"})
		}
		measuredAt := now
		if in.MeasuredAt != "" {
			t, err := parseDate(in.MeasuredAt)
			if err != nil {
				rowErrs = append(rowErrs, rowError{Index: i, Field: "measuredAt", Message: "invalid date"})
			} else {
				measuredAt = t
			}
		}
		rows[i] = model.Measurement{
			TreeID:     in.TreeID,
			HeightM:    in.HeightM,
			DiameterCM: in.DiameterCM,
			Health:     in.Health,
			CO2Kg:      in.CO2Kg,
			Notes:      in.Notes,
			MeasuredBy: &userID,
			MeasuredAt: measuredAt,
		}
	}
	if len(rowErrs) > 0 {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "invalid", 0)
		return respondRowErrors(c, "validation failed", rowErrs)
	}

	treeIDs := make([]uint64, 0, len(rows))
	seen := make(map[uint64]bool, len(rows))
	for _, m := range rows {
		if !seen[m.TreeID] {
			seen[m.TreeID] = true
			treeIDs = append(treeIDs, m.TreeID)
		}
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

	trees, err := h.Trees.ResolveSelectionTx(ctx, tx, treeIDs, repository.TreeFilter{})
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	found := make(map[uint64]bool, len(trees))
	for _, t := range trees {
		found[t.ID] = true
	}
	var missing []uint64
	for _, id := range treeIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "invalid", 0)
		return c.JSON(http.StatusNotFound, echo.Map{
			"success": false,
			"message": "some trees were not found",
			"data":    echo.Map{"missingIds": missing},
		})
	}

	if err := h.Measures.InsertBulkTx(ctx, tx, rows); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}

	detail, _ := json.Marshal(echo.Map{"count": len(rows), "tree_ids": treeIDs})
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionBulkMeasure, Resource: "measurement", Detail: string(detail),
	}); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkMeasure, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	metrics.ObserveBulkOperation(model.ActionBulkMeasure, "ok", int64(len(rows)))

	h.notifyBulk("measurement.added", model.ActionBulkMeasure, trees, userID, 0, false)

	return respond(c, http.StatusCreated, "measurements recorded", echo.Map{
		"summary": echo.Map{"totalRecorded": len(rows), "treeIds": treeIDs},
	})
}

// BulkOperationsStatus handles GET /v1/bulk/operations/status.  It
// reports the batch operations audited in the last 24 hours, grouped
// by action, so operators can see recent bulk activity at a glance.
func (h *BulkHandler) BulkOperationsStatus(c echo.Context) error {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	ops, err := h.Audit.BulkOpsSince(c.Request().Context(), cutoff)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	type opPart struct {
		Action string `json:"action"`
		Count  int64  `json:"count"`
		Last   string `json:"lastAt"`
	}
	parts := make([]opPart, len(ops))
	for i, op := range ops {
		parts[i] = opPart{Action: op.Action, Count: op.Count, Last: op.Last.UTC().Format(time.RFC3339)}
	}
	return respond(c, http.StatusOK, "bulk operation status", echo.Map{
		"since":      cutoff.Format(time.RFC3339),
		"operations": parts,
	})
}
