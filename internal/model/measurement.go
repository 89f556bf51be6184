package model

import "time"

// Health classification values accepted in measurements.health.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
	HealthCritical  = "critical"
)

// ValidHealth reports whether s is one of the accepted health values.
func ValidHealth(s string) bool {
	switch s {
	case HealthExcellent, HealthGood, HealthFair, HealthPoor, HealthCritical:
		return true
	}
	return false
}

// Measurement is one observation of a tree, stored append-only in the
// `measurements` table.  Rows are never updated or removed by the
// application; the latest measurement per tree is derived by timestamp.
//
// Fields:
//
//	ID         – primary key identifier.
//	TreeID     – tree this observation belongs to.
//	HeightM    – height in metres (nullable).
//	DiameterCM – trunk diameter in centimetres (nullable).
//	Health     – health classification (see constants above, nullable).
//	CO2Kg      – estimated CO2 absorption in kilograms (nullable).
//	Notes      – free-text notes.
//	MeasuredBy – user who took the measurement (nullable).
//	MeasuredAt – when the observation was taken.
//	CreatedAt  – when the row was written.
type Measurement struct {
	ID         uint64    // measurements.id
	TreeID     uint64    // measurements.tree_id
	HeightM    *float64  // measurements.height_m (nullable)
	DiameterCM *float64  // measurements.diameter_cm (nullable)
	Health     *string   // measurements.health (nullable)
	CO2Kg      *float64  // measurements.co2_kg (nullable)
	Notes      string    // measurements.notes
	MeasuredBy *uint64   // measurements.measured_by (nullable)
	MeasuredAt time.Time // measurements.measured_at
	CreatedAt  time.Time // measurements.created_at
}
