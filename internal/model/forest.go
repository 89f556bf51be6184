package model

import "time"

// Forest represents a managed forest area as stored in the `forests`
// table.  A forest owns zero or more trees via trees.forest_id.
// Deleting a forest is always a soft delete: IsActive is flipped to
// false and its trees keep their history.
//
// Fields:
//
//	ID            – primary key identifier.
//	Name          – display name of the forest.
//	Region        – administrative region or county.
//	Latitude      – geographic latitude of the forest centre.
//	Longitude     – geographic longitude of the forest centre.
//	Area          – surface area in the unit given by AreaUnit.
//	AreaUnit      – unit of Area (e.g. "ha", "km2").
//	EstablishedAt – date the forest was established (nullable).
//	IsActive      – soft-delete flag.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Forest struct {
	ID            uint64     // forests.id
	Name          string     // forests.name
	Region        string     // forests.region
	Latitude      float64    // forests.latitude
	Longitude     float64    // forests.longitude
	Area          float64    // forests.area
	AreaUnit      string     // forests.area_unit
	EstablishedAt *time.Time // forests.established_at (nullable)
	IsActive      bool       // forests.is_active
	CreatedAt     time.Time  // forests.created_at
	UpdatedAt     time.Time  // forests.updated_at
}
