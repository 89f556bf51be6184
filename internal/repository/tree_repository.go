package repository // repository for tree persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// TreeRepo encapsulates database operations for the trees table.  Bulk
// operations carry the *Tx suffix and run inside a caller-owned
// transaction so that the mutation and its audit record commit or roll
// back as one unit.
type TreeRepo struct {
	db *sql.DB
}

// NewTreeRepo constructs a TreeRepo given a DB handle.
func NewTreeRepo(db *sql.DB) *TreeRepo { return &TreeRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *TreeRepo) DB() *sql.DB { return r.db }

const treeCols = "id, tree_code, forest_id, species, planted_at, died_at, is_alive, latitude, longitude, is_active, deleted_at, deleted_by, created_at, updated_at"

// scanTree scans one trees row from any row scanner.
func scanTree(sc interface{ Scan(...interface{}) error }) (model.Tree, error) {
	var t model.Tree
	var diedAt, deletedAt sql.NullTime
	var deletedBy sql.NullInt64
	err := sc.Scan(&t.ID, &t.TreeCode, &t.ForestID, &t.Species, &t.PlantedAt,
		&diedAt, &t.IsAlive, &t.Latitude, &t.Longitude, &t.IsActive,
		&deletedAt, &deletedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if diedAt.Valid {
		d := diedAt.Time
		t.DiedAt = &d
	}
	if deletedAt.Valid {
		d := deletedAt.Time
		t.DeletedAt = &d
	}
	if deletedBy.Valid {
		u := uint64(deletedBy.Int64)
		t.DeletedBy = &u
	}
	return t, nil
}

// Create inserts a single tree and populates its generated ID.
func (r *TreeRepo) Create(ctx context.Context, t *model.Tree) error {
	return r.create(ctx, r.db, t)
}

// CreateTx is Create within the caller's transaction.
func (r *TreeRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Tree) error {
	return r.create(ctx, tx, t)
}

func (r *TreeRepo) create(ctx context.Context, ex dbtx, t *model.Tree) error {
	const q = `INSERT INTO trees (tree_code, forest_id, species, planted_at, is_alive, latitude, longitude) VALUES (?,?,?,?,?,?,?)`
	res, err := ex.ExecContext(ctx, q, t.TreeCode, t.ForestID, t.Species, t.PlantedAt, t.IsAlive, t.Latitude, t.Longitude)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByID returns one tree regardless of its active flag.  sql.ErrNoRows
// is returned when the tree does not exist.
func (r *TreeRepo) GetByID(ctx context.Context, id uint64) (*model.Tree, error) {
	t, err := scanTree(r.db.QueryRowContext(ctx, "SELECT "+treeCols+" FROM trees WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns active trees matching the filter, ordered by id, with
// limit/offset pagination.
func (r *TreeRepo) List(ctx context.Context, f TreeFilter, limit, offset int) ([]model.Tree, error) {
	cond, args := f.Where()
	q := "SELECT " + treeCols + " FROM trees WHERE " + cond + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Tree, 0)
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Export walks all trees matching the filter without paging, calling fn
// per row, so the CSV export can stream arbitrarily large selections.
func (r *TreeRepo) Export(ctx context.Context, f TreeFilter, fn func(model.Tree) error) error {
	cond, args := f.Where()
	q := "SELECT " + treeCols + " FROM trees WHERE " + cond + " ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Update applies field-level changes to a single tree.  Only non-nil
// fields of upd are written.  It returns ErrNotFound when the tree does
// not exist or is inactive.
func (r *TreeRepo) Update(ctx context.Context, id uint64, upd TreeUpdates) error {
	return r.update(ctx, r.db, id, upd)
}

// UpdateTx is Update within the caller's transaction.
func (r *TreeRepo) UpdateTx(ctx context.Context, tx *sql.Tx, id uint64, upd TreeUpdates) error {
	return r.update(ctx, tx, id, upd)
}

func (r *TreeRepo) update(ctx context.Context, ex dbtx, id uint64, upd TreeUpdates) error {
	set, args := upd.setClause()
	if set == "" {
		return nil
	}
	res, err := ex.ExecContext(ctx, "UPDATE trees SET "+set+" WHERE id = ? AND is_active = 1", append(args, id)...)
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

// SoftDelete flips is_active off for one tree and records the actor.
func (r *TreeRepo) SoftDelete(ctx context.Context, id, userID uint64) error {
	return r.softDelete(ctx, r.db, id, userID)
}

// SoftDeleteTx is SoftDelete within the caller's transaction.
func (r *TreeRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id, userID uint64) error {
	return r.softDelete(ctx, tx, id, userID)
}

func (r *TreeRepo) softDelete(ctx context.Context, ex dbtx, id, userID uint64) error {
	res, err := ex.ExecContext(ctx,
		"UPDATE trees SET is_active = 0, deleted_at = NOW(), deleted_by = ? WHERE id = ? AND is_active = 1",
		userID, id)
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

// TreeUpdates carries the optional field-level changes applied by the
// update endpoints.  Nil fields are left untouched.  The bulk update
// endpoint additionally accepts an add_measurement payload which is
// handled by the measurement repository, not here.
type TreeUpdates struct {
	Species  *string
	ForestID *uint64
	IsAlive  *bool
	DiedAt   *time.Time
}

// setClause renders the non-nil fields into a SET fragment and args.
func (u TreeUpdates) setClause() (string, []interface{}) {
	parts := []string{}
	args := []interface{}{}
	if u.Species != nil {
		parts = append(parts, "species = ?")
		args = append(args, *u.Species)
	}
	if u.ForestID != nil {
		parts = append(parts, "forest_id = ?")
		args = append(args, *u.ForestID)
	}
	if u.IsAlive != nil {
		parts = append(parts, "is_alive = ?")
		args = append(args, *u.IsAlive)
	}
	if u.DiedAt != nil {
		parts = append(parts, "died_at = ?")
		args = append(args, *u.DiedAt)
	}
	if len(parts) == 0 {
		return "", nil
	}
	parts = append(parts, "updated_at = NOW()")
	return strings.Join(parts, ", "), args
}

// IsEmpty reports whether no field-level change is present.
func (u TreeUpdates) IsEmpty() bool {
	return u.Species == nil && u.ForestID == nil && u.IsAlive == nil && u.DiedAt == nil
}

// InsertBulkTx inserts multiple trees in a single statement within the
// provided transaction, then queries the generated ids back.  Rows are
// inserted in input order; MySQL assigns consecutive ids for a single
// multi-VALUES insert so the returned slice matches the input order.
// Passing an empty slice has no effect and returns nil.
func (r *TreeRepo) InsertBulkTx(ctx context.Context, tx *sql.Tx, trees []model.Tree) ([]uint64, error) {
	if len(trees) == 0 {
		return nil, nil
	}
	query := `INSERT INTO trees (tree_code, forest_id, species, planted_at, is_alive, latitude, longitude) VALUES `
	args := make([]interface{}, 0, len(trees)*7)
	for i, t := range trees {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, t.TreeCode, t.ForestID, t.Species, t.PlantedAt, t.IsAlive, t.Latitude, t.Longitude)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(trees))
	for i := range trees {
		ids[i] = uint64(first) + uint64(i)
	}
	return ids, nil
}

// ResolveSelectionTx resolves a bulk selection (explicit id list or
// filter) to concrete active trees inside the transaction, so the caller
// can audit and notify on exactly the rows that will be touched.  When
// ids is non-empty the filter is ignored.
func (r *TreeRepo) ResolveSelectionTx(ctx context.Context, tx *sql.Tx, ids []uint64, f TreeFilter) ([]model.Tree, error) {
	var cond string
	var args []interface{}
	if len(ids) > 0 {
		cond = "is_active = 1 AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	} else {
		cond, args = f.Where()
	}
	rows, err := tx.QueryContext(ctx, "SELECT "+treeCols+" FROM trees WHERE "+cond+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Tree, 0)
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateBulkTx applies the same field-level update to all given trees
// in one statement.  Returns the number of rows changed.
func (r *TreeRepo) UpdateBulkTx(ctx context.Context, tx *sql.Tx, ids []uint64, upd TreeUpdates) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	set, args := upd.setClause()
	if set == "" {
		return 0, nil
	}
	q := "UPDATE trees SET " + set + " WHERE is_active = 1 AND id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteBulkTx marks all given trees inactive, stamping the deletion
// time and actor.  Returns the number of rows changed.
func (r *TreeRepo) SoftDeleteBulkTx(ctx context.Context, tx *sql.Tx, ids []uint64, userID uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := "UPDATE trees SET is_active = 0, deleted_at = NOW(), deleted_by = ? WHERE is_active = 1 AND id IN (" + placeholders(len(ids)) + ")"
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HardDeleteBulkTx removes the given trees entirely.  Associated images
// are deactivated by the caller first (same transaction); measurements
// are removed by the ON DELETE CASCADE constraint.
func (r *TreeRepo) HardDeleteBulkTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := "DELETE FROM trees WHERE id IN (" + placeholders(len(ids)) + ")"
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
