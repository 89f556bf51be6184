// Package realtime implements the best-effort fan-out layer: a hub with
// named rooms that both WebSocket clients and SSE streams subscribe to.
// Delivery is fire-and-forget; a slow subscriber loses events rather
// than blocking the publisher.
package realtime

import (
	"strconv"
	"time"
)

// Room names.  Clients join rooms to scope what they receive: a user's
// private room, a forest's room, or the admin room for role-scoped
// summaries.
const AdminRoom = "admin"

// UserRoom returns the private room name for a user.
func UserRoom(id uint64) string { return "user:" + strconv.FormatUint(id, 10) }

// ForestRoom returns the room name for a forest.
func ForestRoom(id uint64) string { return "forest:" + strconv.FormatUint(id, 10) }

// Event is one message pushed to subscribers.  Type names follow the
// "resource.action" convention ("tree.created", "bulk.summary", ...).
type Event struct {
	Type string      `json:"type"`
	Room string      `json:"room,omitempty"`
	Data interface{} `json:"data,omitempty"`
	At   time.Time   `json:"at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string, data interface{}) Event {
	return Event{Type: typ, Data: data, At: time.Now().UTC()}
}

// TreeEvent is the per-entity payload broadcast after tree mutations.
type TreeEvent struct {
	TreeID   uint64 `json:"tree_id"`
	TreeCode string `json:"tree_code"`
	ForestID uint64 `json:"forest_id"`
	Species  string `json:"species,omitempty"`
}

// BulkSummaryEvent is the single batch-level payload broadcast once per
// bulk call, after the per-entity events.
type BulkSummaryEvent struct {
	Action   string   `json:"action"`
	Count    int      `json:"count"`
	TreeIDs  []uint64 `json:"tree_ids,omitempty"`
	ForestID uint64   `json:"forest_id,omitempty"`
	ByUser   uint64   `json:"by_user"`
}

// Broadcaster is the dependency handlers receive at construction time.
// The hub implements it; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(room string, ev Event)
}
