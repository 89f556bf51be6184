// Package queue defines message payloads exchanged over the message broker.
package queue

// BulkOperationEvent is published when a bulk tree or measurement
// operation commits.  It carries enough information for downstream
// consumers to log, notify, or feed analytics without querying the
// primary database.
type BulkOperationEvent struct {
	Action      string   `json:"action"`
	UserID      uint64   `json:"user_id"`
	ForestID    uint64   `json:"forest_id,omitempty"`
	Count       int      `json:"count"`
	TreeIDs     []uint64 `json:"tree_ids,omitempty"`
	HardDelete  bool     `json:"hard_delete,omitempty"`
	CompletedAt string   `json:"completed_at"`
}
