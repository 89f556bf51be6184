package repository // repository for audit log persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// AuditRepo appends and reads audit_logs rows.  The table is strictly
// append-only: the application never updates or deletes audit entries.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo constructs an AuditRepo given a DB handle.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// InsertTx appends one audit entry within the caller's transaction so
// the mutation and its audit record commit or roll back together.
func (r *AuditRepo) InsertTx(ctx context.Context, tx *sql.Tx, a *model.AuditLog) error {
	const q = `INSERT INTO audit_logs (user_id, action, resource, resource_id, detail) VALUES (?,?,?,?,?)`
	res, err := tx.ExecContext(ctx, q, a.UserID, a.Action, a.Resource, a.ResourceID, a.Detail)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// Insert appends one audit entry outside any transaction, for mutations
// that are single statements and need no enclosing unit.
func (r *AuditRepo) Insert(ctx context.Context, a *model.AuditLog) error {
	const q = `INSERT INTO audit_logs (user_id, action, resource, resource_id, detail) VALUES (?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, a.UserID, a.Action, a.Resource, a.ResourceID, a.Detail)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// AuditFilter narrows audit listings.  Empty fields match everything.
type AuditFilter struct {
	UserID   uint64
	Action   string
	Resource string
}

// List returns audit entries newest first, matching the filter.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter, limit, offset int) ([]model.AuditLog, error) {
	q := "SELECT id, user_id, action, resource, resource_id, detail, created_at FROM audit_logs WHERE 1=1"
	args := []interface{}{}
	if f.UserID != 0 {
		q += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		q += " AND resource = ?"
		args = append(args, f.Resource)
	}
	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AuditLog, 0)
	for rows.Next() {
		var a model.AuditLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.ResourceID, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID returns one audit entry.  sql.ErrNoRows when absent.
func (r *AuditRepo) GetByID(ctx context.Context, id uint64) (*model.AuditLog, error) {
	var a model.AuditLog
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, action, resource, resource_id, detail, created_at FROM audit_logs WHERE id = ?",
		id).Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.ResourceID, &a.Detail, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// BulkOpSummary is one row of the bulk-operation status report: how many
// bulk calls of each action ran since the cutoff.
type BulkOpSummary struct {
	Action string    `json:"action"`
	Count  int64     `json:"count"`
	Last   time.Time `json:"last"`
}

// BulkOpsSince summarizes bulk-operation audit entries created after the
// cutoff, grouped by action.
func (r *AuditRepo) BulkOpsSince(ctx context.Context, cutoff time.Time) ([]BulkOpSummary, error) {
	const q = `SELECT action, COUNT(*), MAX(created_at)
	           FROM audit_logs
	           WHERE action LIKE 'bulk%' AND created_at >= ?
	           GROUP BY action
	           ORDER BY action`
	rows, err := r.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]BulkOpSummary, 0)
	for rows.Next() {
		var s BulkOpSummary
		if err := rows.Scan(&s.Action, &s.Count, &s.Last); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
