package model

import "time"

// Audit actions written by the application.  One bulk call writes exactly
// one audit row regardless of how many trees it touched.
const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionHardDelete     = "hard_delete"
	ActionBulkCreate     = "bulk_create"
	ActionBulkUpdate     = "bulk_update"
	ActionBulkDelete     = "bulk_delete"
	ActionBulkMeasure    = "bulk_measurements"
	ActionUpload         = "upload"
	ActionAddMeasurement = "add_measurement"
)

// AuditLog is an immutable record of who did what to which resource and
// when.  Rows are appended inside the same transaction as the mutation
// they describe and are never updated or deleted by the application.
//
// Fields:
//
//	ID         – primary key identifier.
//	UserID     – user who performed the action.
//	Action     – one of the Action* constants above.
//	Resource   – resource type ("tree", "forest", "user", "tree_image").
//	ResourceID – identifier of the affected resource; for bulk operations
//	             this is empty and the detail payload carries the ids.
//	Detail     – JSON payload describing the change (counts, filters, ids).
//	CreatedAt  – timestamp of the action.
type AuditLog struct {
	ID         uint64    // audit_logs.id
	UserID     uint64    // audit_logs.user_id
	Action     string    // audit_logs.action
	Resource   string    // audit_logs.resource
	ResourceID string    // audit_logs.resource_id
	Detail     string    // audit_logs.detail (JSON)
	CreatedAt  time.Time // audit_logs.created_at
}
