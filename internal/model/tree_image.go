package model

import "time"

// Image classification values accepted in tree_images.kind.
const (
	ImageCanopy = "canopy"
	ImageTrunk  = "trunk"
	ImageLeaf   = "leaf"
	ImageBark   = "bark"
	ImageFull   = "full"
	ImageOther  = "other"
)

// ValidImageKind reports whether s is an accepted image classification.
func ValidImageKind(s string) bool {
	switch s {
	case ImageCanopy, ImageTrunk, ImageLeaf, ImageBark, ImageFull, ImageOther:
		return true
	}
	return false
}

// TreeImage records an uploaded photo of a tree.  The file itself lives
// on disk under the configured upload directory; only paths and metadata
// are stored.  Images are soft deleted by flipping IsActive, and hard
// deleting a tree deactivates all of its images rather than removing them.
type TreeImage struct {
	ID         uint64    // tree_images.id
	TreeID     uint64    // tree_images.tree_id
	FilePath   string    // tree_images.file_path
	ThumbPath  string    // tree_images.thumb_path
	MimeType   string    // tree_images.mime_type
	SizeBytes  int64     // tree_images.size_bytes
	Kind       string    // tree_images.kind
	Tags       string    // tree_images.tags (comma separated)
	UploadedBy uint64    // tree_images.uploaded_by
	IsActive   bool      // tree_images.is_active
	CreatedAt  time.Time // tree_images.created_at
}
