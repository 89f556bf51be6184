package model

import "time"

// Tree represents a single monitored tree as stored in the `trees`
// table.  Each tree belongs to exactly one forest.  Measurements are
// kept in a separate child table (see Measurement) ordered by
// measurement timestamp, so a tree row never grows with its history.
//
// Soft delete flips IsActive to false and records who deleted the row
// and when; the row and its measurements are preserved.  Hard delete
// removes the row and is reserved for administrators.
//
// Fields:
//
//	ID        – primary key identifier.
//	TreeCode  – externally visible unique code (e.g. "TR-2024-0001").
//	ForestID  – owning forest.
//	Species   – species name, free text.
//	PlantedAt – planting date.
//	DiedAt    – date of death (null while alive).
//	IsAlive   – liveness flag.
//	Latitude  – geographic latitude of the tree.
//	Longitude – geographic longitude of the tree.
//	IsActive  – soft-delete flag.
//	DeletedAt – when the tree was soft deleted (nullable).
//	DeletedBy – user who soft deleted the tree (nullable).
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp.
type Tree struct {
	ID        uint64     // trees.id
	TreeCode  string     // trees.tree_code (unique)
	ForestID  uint64     // trees.forest_id
	Species   string     // trees.species
	PlantedAt time.Time  // trees.planted_at
	DiedAt    *time.Time // trees.died_at (nullable)
	IsAlive   bool       // trees.is_alive
	Latitude  float64    // trees.latitude
	Longitude float64    // trees.longitude
	IsActive  bool       // trees.is_active
	DeletedAt *time.Time // trees.deleted_at (nullable)
	DeletedBy *uint64    // trees.deleted_by (nullable)
	CreatedAt time.Time  // trees.created_at
	UpdatedAt time.Time  // trees.updated_at
}
