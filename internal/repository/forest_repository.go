package repository // repository for forest persistence

import (
	"context"
	"database/sql"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// ForestRepo encapsulates database operations for the forests table.
type ForestRepo struct {
	db *sql.DB
}

// NewForestRepo constructs a ForestRepo given a DB handle.
func NewForestRepo(db *sql.DB) *ForestRepo { return &ForestRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning the forest mutation and its audit entry.
func (r *ForestRepo) DB() *sql.DB { return r.db }

const forestCols = "id, name, region, latitude, longitude, area, area_unit, established_at, is_active, created_at, updated_at"

func scanForest(sc interface{ Scan(...interface{}) error }) (model.Forest, error) {
	var f model.Forest
	var established sql.NullTime
	err := sc.Scan(&f.ID, &f.Name, &f.Region, &f.Latitude, &f.Longitude,
		&f.Area, &f.AreaUnit, &established, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return f, err
	}
	if established.Valid {
		e := established.Time
		f.EstablishedAt = &e
	}
	return f, nil
}

// Create inserts a forest and populates its generated ID.
func (r *ForestRepo) Create(ctx context.Context, f *model.Forest) error {
	return r.create(ctx, r.db, f)
}

// CreateTx is Create within the caller's transaction.
func (r *ForestRepo) CreateTx(ctx context.Context, tx *sql.Tx, f *model.Forest) error {
	return r.create(ctx, tx, f)
}

func (r *ForestRepo) create(ctx context.Context, ex dbtx, f *model.Forest) error {
	const q = `INSERT INTO forests (name, region, latitude, longitude, area, area_unit, established_at) VALUES (?,?,?,?,?,?,?)`
	res, err := ex.ExecContext(ctx, q, f.Name, f.Region, f.Latitude, f.Longitude, f.Area, f.AreaUnit, f.EstablishedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

// GetByID returns one forest.  sql.ErrNoRows when absent.
func (r *ForestRepo) GetByID(ctx context.Context, id uint64) (*model.Forest, error) {
	f, err := scanForest(r.db.QueryRowContext(ctx, "SELECT "+forestCols+" FROM forests WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ExistsActive reports whether a forest exists and is active.  Used by
// the bulk create path to validate the default forest reference.
func (r *ForestRepo) ExistsActive(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM forests WHERE id = ? AND is_active = 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns active forests ordered by name.
func (r *ForestRepo) List(ctx context.Context) ([]model.Forest, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+forestCols+" FROM forests WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Forest, 0)
	for rows.Next() {
		f, err := scanForest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a forest.  ErrNotFound when the
// forest does not exist or is inactive.
func (r *ForestRepo) Update(ctx context.Context, f *model.Forest) error {
	return r.update(ctx, r.db, f)
}

// UpdateTx is Update within the caller's transaction.
func (r *ForestRepo) UpdateTx(ctx context.Context, tx *sql.Tx, f *model.Forest) error {
	return r.update(ctx, tx, f)
}

func (r *ForestRepo) update(ctx context.Context, ex dbtx, f *model.Forest) error {
	const q = `UPDATE forests SET name = ?, region = ?, latitude = ?, longitude = ?, area = ?, area_unit = ?, established_at = ?, updated_at = NOW()
	           WHERE id = ? AND is_active = 1`
	res, err := ex.ExecContext(ctx, q, f.Name, f.Region, f.Latitude, f.Longitude, f.Area, f.AreaUnit, f.EstablishedAt, f.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete flips is_active off.  The forest's trees are untouched.
func (r *ForestRepo) SoftDelete(ctx context.Context, id uint64) error {
	return r.softDelete(ctx, r.db, id)
}

// SoftDeleteTx is SoftDelete within the caller's transaction.
func (r *ForestRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return r.softDelete(ctx, tx, id)
}

func (r *ForestRepo) softDelete(ctx context.Context, ex dbtx, id uint64) error {
	res, err := ex.ExecContext(ctx, "UPDATE forests SET is_active = 0, updated_at = NOW() WHERE id = ? AND is_active = 1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
