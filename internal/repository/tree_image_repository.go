package repository // repository for tree image persistence

import (
	"context"
	"database/sql"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// TreeImageRepo encapsulates database operations for the tree_images
// table.  Image files live on disk; only paths and metadata are stored.
type TreeImageRepo struct {
	db *sql.DB
}

// NewTreeImageRepo constructs a TreeImageRepo given a DB handle.
func NewTreeImageRepo(db *sql.DB) *TreeImageRepo { return &TreeImageRepo{db: db} }

// Insert records an uploaded image and populates its generated ID.
func (r *TreeImageRepo) Insert(ctx context.Context, img *model.TreeImage) error {
	const q = `INSERT INTO tree_images (tree_id, file_path, thumb_path, mime_type, size_bytes, kind, tags, uploaded_by) VALUES (?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, img.TreeID, img.FilePath, img.ThumbPath, img.MimeType, img.SizeBytes, img.Kind, img.Tags, img.UploadedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	img.ID = uint64(id)
	return nil
}

// ListByTree returns the active images of a tree, newest first.
func (r *TreeImageRepo) ListByTree(ctx context.Context, treeID uint64) ([]model.TreeImage, error) {
	const q = `SELECT id, tree_id, file_path, thumb_path, mime_type, size_bytes, kind, tags, uploaded_by, is_active, created_at
	           FROM tree_images WHERE tree_id = ? AND is_active = 1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, treeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TreeImage, 0)
	for rows.Next() {
		var img model.TreeImage
		if err := rows.Scan(&img.ID, &img.TreeID, &img.FilePath, &img.ThumbPath, &img.MimeType,
			&img.SizeBytes, &img.Kind, &img.Tags, &img.UploadedBy, &img.IsActive, &img.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// SoftDelete deactivates one image.  ErrNotFound when absent or already
// inactive.
func (r *TreeImageRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE tree_images SET is_active = 0 WHERE id = ? AND is_active = 1", id)
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

// DeactivateByTreesTx deactivates every image owned by the given trees.
// Called by the bulk hard-delete path inside its transaction before the
// tree rows are removed, so image history survives the delete.
func (r *TreeImageRepo) DeactivateByTreesTx(ctx context.Context, tx *sql.Tx, treeIDs []uint64) (int64, error) {
	if len(treeIDs) == 0 {
		return 0, nil
	}
	q := "UPDATE tree_images SET is_active = 0 WHERE tree_id IN (" + placeholders(len(treeIDs)) + ")"
	args := make([]interface{}, 0, len(treeIDs))
	for _, id := range treeIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
