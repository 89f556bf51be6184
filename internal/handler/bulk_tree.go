package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/metrics"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/queue"
	"github.com/forestwatch/forest-monitor/internal/realtime"
	"github.com/forestwatch/forest-monitor/internal/repository"
	queue_publisher "github.com/forestwatch/forest-monitor/internal/service"
)

// BulkHandler implements the batch write path: the same mutation applied
// to many trees as one all-or-nothing unit.  Every operation runs the
// mutation and its single audit record inside one transaction; realtime
// fan-out and queue publishing happen strictly after commit and are
// best-effort.  All methods assume JWT middleware has run.
type BulkHandler struct {
	Cfg      config.Config
	Trees    *repository.TreeRepo
	Measures *repository.MeasurementRepo
	Images   *repository.TreeImageRepo
	Forests  *repository.ForestRepo
	Audit    *repository.AuditRepo
	Events   realtime.Broadcaster
}

// NewBulkHandler constructs a BulkHandler.  All dependencies must be non-nil.
func NewBulkHandler(cfg config.Config, trees *repository.TreeRepo, measures *repository.MeasurementRepo, images *repository.TreeImageRepo, forests *repository.ForestRepo, audit *repository.AuditRepo, events realtime.Broadcaster) *BulkHandler {
	if trees == nil || measures == nil || images == nil || forests == nil || audit == nil || events == nil {
		panic("nil dependency passed to NewBulkHandler")
	}
	return &BulkHandler{Cfg: cfg, Trees: trees, Measures: measures, Images: images, Forests: forests, Audit: audit, Events: events}
}

// ----- DTOs -----

// geoPoint carries GeoJSON-ordered coordinates: [longitude, latitude].
type geoPoint struct {
	Coordinates []float64 `json:"coordinates"`
}

type bulkTreeInput struct {
	TreeCode  string    `json:"treeCode"`
	Species   string    `json:"species"`
	ForestID  uint64    `json:"forestId"`
	PlantedAt string    `json:"plantedAt"`
	IsAlive   *bool     `json:"isAlive"`
	Location  *geoPoint `json:"location"`
}

type bulkCreateReq struct {
	Trees          []bulkTreeInput `json:"trees"`
	ForestID       uint64          `json:"forestId"`
	SkipValidation bool            `json:"skipValidation"`
}

type bulkFilterInput struct {
	ForestID      uint64 `json:"forestId"`
	Species       string `json:"species"`
	IsAlive       *bool  `json:"isAlive"`
	PlantedAfter  string `json:"plantedAfter"`
	PlantedBefore string `json:"plantedBefore"`
}

// toFilter converts the request filter into a repository TreeFilter.
func (f *bulkFilterInput) toFilter() (repository.TreeFilter, error) {
	out := repository.TreeFilter{Species: f.Species, IsAlive: f.IsAlive}
	if f.ForestID != 0 {
		out.ForestIDs = []uint64{f.ForestID}
	}
	if f.PlantedAfter != "" {
		t, err := parseDate(f.PlantedAfter)
		if err != nil {
			return out, err
		}
		out.PlantedAfter = &t
	}
	if f.PlantedBefore != "" {
		t, err := parseDate(f.PlantedBefore)
		if err != nil {
			return out, err
		}
		out.PlantedBefore = &t
	}
	return out, nil
}

type measurementInput struct {
	TreeID     uint64   `json:"treeId"`
	HeightM    *float64 `json:"heightM"`
	DiameterCM *float64 `json:"diameterCm"`
	Health     *string  `json:"health"`
	CO2Kg      *float64 `json:"co2Kg"`
	Notes      string   `json:"notes"`
	MeasuredAt string   `json:"measuredAt"`
}

// hasValue reports whether at least one measurement value is present.
func (m measurementInput) hasValue() bool {
	return m.HeightM != nil || m.DiameterCM != nil || m.Health != nil || m.CO2Kg != nil
}

type bulkUpdatesInput struct {
	Species        *string           `json:"species"`
	ForestID       *uint64           `json:"forestId"`
	IsAlive        *bool             `json:"isAlive"`
	DiedAt         *string           `json:"diedAt"`
	AddMeasurement *measurementInput `json:"addMeasurement"`
}

type bulkUpdateReq struct {
	TreeIDs []uint64         `json:"treeIds"`
	Filter  *bulkFilterInput `json:"filter"`
	Updates bulkUpdatesInput `json:"updates"`
}

type bulkDeleteReq struct {
	TreeIDs    []uint64         `json:"treeIds"`
	Filter     *bulkFilterInput `json:"filter"`
	HardDelete bool             `json:"hardDelete"`
}

// treePart is the per-tree shape returned by bulk endpoints.
type treePart struct {
	ID       uint64 `json:"id"`
	TreeCode string `json:"treeCode"`
	ForestID uint64 `json:"forestId"`
	Species  string `json:"species"`
}

func toTreePart(t model.Tree) treePart {
	return treePart{ID: t.ID, TreeCode: t.TreeCode, ForestID: t.ForestID, Species: t.Species}
}

// BulkCreate handles POST /v1/bulk/trees/create.  It validates every row
// before touching the database, collecting all failures so the caller
// can fix the batch in one round trip, then inserts all rows, writes one
// audit record and commits as a single unit.
func (h *BulkHandler) BulkCreate(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req bulkCreateReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.Trees) == 0 {
		return respondError(c, http.StatusBadRequest, "trees array is required")
	}
	if len(req.Trees) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkCreate, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}

	// Inject defaults and validate.  Validation failures are collected
	// exhaustively; the batch is aborted only after every row was seen.
	now := time.Now().UTC()
	rows := make([]model.Tree, len(req.Trees))
	var rowErrs []rowError
	for i, in := range req.Trees {
		t := model.Tree{
			TreeCode: in.TreeCode,
			ForestID: in.ForestID,
			Species:  in.Species,
			IsAlive:  true,
		}
		if t.ForestID == 0 {
			t.ForestID = req.ForestID
		}
		if in.IsAlive != nil {
			t.IsAlive = *in.IsAlive
		}
		if in.PlantedAt != "" {
			p, err := parseDate(in.PlantedAt)
			if err != nil {
				rowErrs = append(rowErrs, rowError{Index: i, Field: "plantedAt", Message: "invalid date"})
			} else {
				t.PlantedAt = p
			}
		} else {
			t.PlantedAt = now
		}
		if in.Location != nil && len(in.Location.Coordinates) == 2 {
			t.Longitude = in.Location.Coordinates[0]
			t.Latitude = in.Location.Coordinates[1]
		}
		if !req.SkipValidation {
			if t.Species == "" {
				rowErrs = append(rowErrs, rowError{Index: i, Field: "species", Message: "species is required"})
			}
			if t.ForestID == 0 {
				rowErrs = append(rowErrs, rowError{Index: i, Field: "forestId", Message: "forest reference is required"})
			}
			if in.Location == nil || len(in.Location.Coordinates) != 2 {
				rowErrs = append(rowErrs, rowError{Index: i, Field: "location", Message: "coordinates [lng, lat] are required"})
			}
		}
		if t.TreeCode == "" {
			t.TreeCode = newTreeCode()
		}
		rows[i] = t
	}
	if len(rowErrs) > 0 {
		metrics.ObserveBulkOperation(model.ActionBulkCreate, "invalid", 0)
		return respondRowErrors(c, "validation failed", rowErrs)
	}

	ctx := c.Request().Context()
	if req.ForestID != 0 {
		ok, err := h.Forests.ExistsActive(ctx, req.ForestID)
		if err != nil {
			return internalError(c, h.Cfg.IsProd(), err)
		}
		if !ok {
			return respondError(c, http.StatusNotFound, "forest not found")
		}
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

	ids, err := h.Trees.InsertBulkTx(ctx, tx, rows)
	if err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkCreate, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	for i := range rows {
		rows[i].ID = ids[i]
	}

	detail, _ := json.Marshal(echo.Map{"count": len(rows), "forest_id": req.ForestID, "tree_ids": ids})
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionBulkCreate, Resource: "tree", Detail: string(detail),
	}); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkCreate, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkCreate, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	metrics.ObserveBulkOperation(model.ActionBulkCreate, "ok", int64(len(rows)))

	h.notifyBulk("tree.created", model.ActionBulkCreate, rows, userID, req.ForestID, false)

	parts := make([]treePart, len(rows))
	for i, t := range rows {
		parts[i] = toTreePart(t)
	}
	return respond(c, http.StatusCreated, "trees created", echo.Map{
		"createdTrees": parts,
		"summary":      echo.Map{"totalCreated": len(parts), "forestId": req.ForestID},
	})
}

// BulkUpdate handles PUT /v1/bulk/trees/update.  The selection (explicit
// ids or filter) is resolved to concrete rows first so the audit record
// and notifications name exactly the affected trees.  The special
// addMeasurement field appends measurement rows instead of overwriting
// anything.
func (h *BulkHandler) BulkUpdate(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req bulkUpdateReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.TreeIDs) == 0 && req.Filter == nil {
		return respondError(c, http.StatusBadRequest, "treeIds or filter is required")
	}
	if len(req.TreeIDs) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkUpdate, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}

	upd, rowErrs := h.buildUpdates(req.Updates)
	if len(rowErrs) > 0 {
		return respondRowErrors(c, "validation failed", rowErrs)
	}
	if upd.IsEmpty() && req.Updates.AddMeasurement == nil {
		return respondError(c, http.StatusBadRequest, "updates object is empty")
	}

	var filter repository.TreeFilter
	if req.Filter != nil {
		filter, err = req.Filter.toFilter()
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid filter date")
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

	trees, err := h.Trees.ResolveSelectionTx(ctx, tx, req.TreeIDs, filter)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if len(trees) == 0 {
		return respondError(c, http.StatusNotFound, msgNoTreesMatched)
	}
	if len(trees) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkUpdate, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}
	affected := make([]uint64, len(trees))
	for i, t := range trees {
		affected[i] = t.ID
	}

	var updated int64
	if !upd.IsEmpty() {
		updated, err = h.Trees.UpdateBulkTx(ctx, tx, affected, upd)
		if err != nil {
			metrics.ObserveBulkOperation(model.ActionBulkUpdate, "error", 0)
			return internalError(c, h.Cfg.IsProd(), err)
		}
	}
	if m := req.Updates.AddMeasurement; m != nil {
		ms, err := h.measurementRows(affected, *m, userID)
		if err != nil {
			return respondError(c, http.StatusBadRequest, err.Error())
		}
		if err := h.Measures.InsertBulkTx(ctx, tx, ms); err != nil {
			metrics.ObserveBulkOperation(model.ActionBulkUpdate, "error", 0)
			return internalError(c, h.Cfg.IsProd(), err)
		}
	}

	detail, _ := json.Marshal(echo.Map{"count": len(affected), "tree_ids": affected})
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: model.ActionBulkUpdate, Resource: "tree", Detail: string(detail),
	}); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkUpdate, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		metrics.ObserveBulkOperation(model.ActionBulkUpdate, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	metrics.ObserveBulkOperation(model.ActionBulkUpdate, "ok", int64(len(affected)))

	h.notifyBulk("tree.updated", model.ActionBulkUpdate, trees, userID, 0, false)

	return respond(c, http.StatusOK, "trees updated", echo.Map{
		"summary": echo.Map{"totalMatched": len(affected), "totalUpdated": updated, "treeIds": affected},
	})
}

// buildUpdates translates the request updates into repository form,
// reporting invalid values as row errors on index 0 (the updates object
// applies to the batch as a whole).
func (h *BulkHandler) buildUpdates(in bulkUpdatesInput) (repository.TreeUpdates, []rowError) {
	var upd repository.TreeUpdates
	var errs []rowError
	upd.Species = in.Species
	upd.ForestID = in.ForestID
	upd.IsAlive = in.IsAlive
	if in.DiedAt != nil {
		t, err := parseDate(*in.DiedAt)
		if err != nil {
			errs = append(errs, rowError{Index: 0, Field: "diedAt", Message: "invalid date"})
		} else {
			upd.DiedAt = &t
		}
	}
	if in.AddMeasurement != nil && in.AddMeasurement.Health != nil && !model.ValidHealth(*in.AddMeasurement.Health) {
		errs = append(errs, rowError{Index: 0, Field: "addMeasurement.health", Message: "invalid health value"})
	}
	return upd, errs
}

// measurementRows expands one measurement input into a row per tree.
func (h *BulkHandler) measurementRows(treeIDs []uint64, in measurementInput, userID uint64) ([]model.Measurement, error) {
	measuredAt := time.Now().UTC()
	if in.MeasuredAt != "" {
		t, err := parseDate(in.MeasuredAt)
		if err != nil {
			return nil, err
		}
		measuredAt = t
	}
	out := make([]model.Measurement, len(treeIDs))
	for i, id := range treeIDs {
		out[i] = model.Measurement{
			TreeID:     id,
			HeightM:    in.HeightM,
			DiameterCM: in.DiameterCM,
			Health:     in.Health,
			CO2Kg:      in.CO2Kg,
			Notes:      in.Notes,
			MeasuredBy: &userID,
			MeasuredAt: measuredAt,
		}
	}
	return out, nil
}

// BulkDelete handles DELETE /v1/bulk/trees/delete.  Soft delete is the
// default; hard delete requires the ADMIN role, checked before any row
// is read, and additionally deactivates every image owned by the
// deleted trees inside the same transaction.
func (h *BulkHandler) BulkDelete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	var req bulkDeleteReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	// Role gate first: no data is read before the caller is cleared for
	// the destructive variant.
	if req.HardDelete && !isAdmin(c) {
		return respondError(c, http.StatusForbidden, "hard delete requires admin role")
	}
	if len(req.TreeIDs) == 0 && req.Filter == nil {
		return respondError(c, http.StatusBadRequest, "treeIds or filter is required")
	}
	if len(req.TreeIDs) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkDelete, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}

	var filter repository.TreeFilter
	if req.Filter != nil {
		filter, err = req.Filter.toFilter()
		if err != nil {
			return respondError(c, http.StatusBadRequest, "invalid filter date")
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

	trees, err := h.Trees.ResolveSelectionTx(ctx, tx, req.TreeIDs, filter)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if len(trees) == 0 {
		return respondError(c, http.StatusNotFound, msgNoTreesMatched)
	}
	if len(trees) > maxBulkRows {
		metrics.ObserveBulkOperation(model.ActionBulkDelete, "rejected", 0)
		return respondError(c, http.StatusBadRequest, msgTooManyTrees)
	}
	affected := make([]uint64, len(trees))
	for i, t := range trees {
		affected[i] = t.ID
	}

	action := model.ActionBulkDelete
	var deleted int64
	if req.HardDelete {
		// Image history survives the hard delete: deactivate, don't drop.
		if _, err := h.Images.DeactivateByTreesTx(ctx, tx, affected); err != nil {
			metrics.ObserveBulkOperation(action, "error", 0)
			return internalError(c, h.Cfg.IsProd(), err)
		}
		deleted, err = h.Trees.HardDeleteBulkTx(ctx, tx, affected)
	} else {
		deleted, err = h.Trees.SoftDeleteBulkTx(ctx, tx, affected, userID)
	}
	if err != nil {
		metrics.ObserveBulkOperation(action, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}

	detail, _ := json.Marshal(echo.Map{"count": len(affected), "tree_ids": affected, "hard_delete": req.HardDelete})
	if err := h.Audit.InsertTx(ctx, tx, &model.AuditLog{
		UserID: userID, Action: action, Resource: "tree", Detail: string(detail),
	}); err != nil {
		metrics.ObserveBulkOperation(action, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := tx.Commit(); err != nil {
		metrics.ObserveBulkOperation(action, "error", 0)
		return internalError(c, h.Cfg.IsProd(), err)
	}
	committed = true
	metrics.ObserveBulkOperation(action, "ok", deleted)

	h.notifyBulk("tree.deleted", action, trees, userID, 0, req.HardDelete)

	return respond(c, http.StatusOK, "trees deleted", echo.Map{
		"summary": echo.Map{"totalDeleted": deleted, "hardDelete": req.HardDelete, "treeIds": affected},
	})
}

// notifyBulk fans out post-commit events: one per-entity event to the
// owning forest's room, then a single batch summary to the admin room
// and the acting user's room, and finally a persistent queue message.
// Everything here is best-effort; failures are logged by the publisher
// and never affect the committed response.
func (h *BulkHandler) notifyBulk(evType, action string, trees []model.Tree, userID, forestID uint64, hard bool) {
	ids := make([]uint64, len(trees))
	for i, t := range trees {
		ids[i] = t.ID
		h.Events.Broadcast(realtime.ForestRoom(t.ForestID), realtime.NewEvent(evType, realtime.TreeEvent{
			TreeID: t.ID, TreeCode: t.TreeCode, ForestID: t.ForestID, Species: t.Species,
		}))
		metrics.ObserveEventBroadcast(evType)
	}
	summary := realtime.NewEvent("bulk.summary", realtime.BulkSummaryEvent{
		Action: action, Count: len(trees), TreeIDs: ids, ForestID: forestID, ByUser: userID,
	})
	h.Events.Broadcast(realtime.AdminRoom, summary)
	h.Events.Broadcast(realtime.UserRoom(userID), summary)
	metrics.ObserveEventBroadcast("bulk.summary")

	// The request context may be cancelled as soon as the response is
	// written; give the publisher its own deadline.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = queue_publisher.PublishBulkOperation(ctx, queue.BulkOperationEvent{
			Action:      action,
			UserID:      userID,
			ForestID:    forestID,
			Count:       len(trees),
			TreeIDs:     ids,
			HardDelete:  hard,
			CompletedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}
