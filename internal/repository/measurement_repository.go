package repository // repository for measurement persistence

import (
	"context"
	"database/sql"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// MeasurementRepo encapsulates database operations for the measurements
// table.  The table is append-only, so there are no update or delete
// methods.
type MeasurementRepo struct {
	db *sql.DB
}

// NewMeasurementRepo constructs a MeasurementRepo given a DB handle.
func NewMeasurementRepo(db *sql.DB) *MeasurementRepo { return &MeasurementRepo{db: db} }

// Insert appends one measurement and populates its generated ID.
func (r *MeasurementRepo) Insert(ctx context.Context, m *model.Measurement) error {
	return r.insert(ctx, r.db, m)
}

// InsertTx is Insert within the caller's transaction.
func (r *MeasurementRepo) InsertTx(ctx context.Context, tx *sql.Tx, m *model.Measurement) error {
	return r.insert(ctx, tx, m)
}

func (r *MeasurementRepo) insert(ctx context.Context, ex dbtx, m *model.Measurement) error {
	const q = `INSERT INTO measurements (tree_id, height_m, diameter_cm, health, co2_kg, notes, measured_by, measured_at) VALUES (?,?,?,?,?,?,?,?)`
	res, err := ex.ExecContext(ctx, q, m.TreeID, m.HeightM, m.DiameterCM, m.Health, m.CO2Kg, m.Notes, m.MeasuredBy, m.MeasuredAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// InsertBulkTx appends multiple measurements in a single statement
// within the provided transaction.  Rows are inserted in input order.
// Passing an empty slice has no effect and returns nil.
func (r *MeasurementRepo) InsertBulkTx(ctx context.Context, tx *sql.Tx, ms []model.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	query := `INSERT INTO measurements (tree_id, height_m, diameter_cm, health, co2_kg, notes, measured_by, measured_at) VALUES `
	args := make([]interface{}, 0, len(ms)*8)
	for i, m := range ms {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, m.TreeID, m.HeightM, m.DiameterCM, m.Health, m.CO2Kg, m.Notes, m.MeasuredBy, m.MeasuredAt)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListByTree returns all measurements for a tree ordered by measurement
// timestamp ascending, so the sequence reads as the tree's history.
func (r *MeasurementRepo) ListByTree(ctx context.Context, treeID uint64) ([]model.Measurement, error) {
	const q = `SELECT id, tree_id, height_m, diameter_cm, health, co2_kg, notes, measured_by, measured_at, created_at
	           FROM measurements WHERE tree_id = ? ORDER BY measured_at, id`
	rows, err := r.db.QueryContext(ctx, q, treeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Measurement, 0)
	for rows.Next() {
		var m model.Measurement
		var height, diameter, co2 sql.NullFloat64
		var health sql.NullString
		var measuredBy sql.NullInt64
		if err := rows.Scan(&m.ID, &m.TreeID, &height, &diameter, &health, &co2,
			&m.Notes, &measuredBy, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		if height.Valid {
			v := height.Float64
			m.HeightM = &v
		}
		if diameter.Valid {
			v := diameter.Float64
			m.DiameterCM = &v
		}
		if health.Valid {
			v := health.String
			m.Health = &v
		}
		if co2.Valid {
			v := co2.Float64
			m.CO2Kg = &v
		}
		if measuredBy.Valid {
			v := uint64(measuredBy.Int64)
			m.MeasuredBy = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ExportRow is one measurement joined with its tree's code, used by the
// CSV export.
type ExportRow struct {
	TreeCode    string
	Measurement model.Measurement
}

// Export walks measurements of active trees newest first, calling fn per
// row, so the export endpoint can stream without buffering the table.
func (r *MeasurementRepo) Export(ctx context.Context, forestID uint64, fn func(ExportRow) error) error {
	q := `SELECT t.tree_code, m.id, m.tree_id, m.height_m, m.diameter_cm, m.health, m.co2_kg, m.notes, m.measured_at
	      FROM measurements m
	      JOIN trees t ON t.id = m.tree_id
	      WHERE t.is_active = 1`
	args := []interface{}{}
	if forestID != 0 {
		q += " AND t.forest_id = ?"
		args = append(args, forestID)
	}
	q += " ORDER BY m.measured_at DESC, m.id DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var er ExportRow
		m := &er.Measurement
		var height, diameter, co2 sql.NullFloat64
		var health sql.NullString
		if err := rows.Scan(&er.TreeCode, &m.ID, &m.TreeID, &height, &diameter, &health, &co2, &m.Notes, &m.MeasuredAt); err != nil {
			return err
		}
		if height.Valid {
			v := height.Float64
			m.HeightM = &v
		}
		if diameter.Valid {
			v := diameter.Float64
			m.DiameterCM = &v
		}
		if health.Valid {
			v := health.String
			m.Health = &v
		}
		if co2.Valid {
			v := co2.Float64
			m.CO2Kg = &v
		}
		if err := fn(er); err != nil {
			return err
		}
	}
	return rows.Err()
}
