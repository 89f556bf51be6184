package handler

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/config"
	"github.com/forestwatch/forest-monitor/internal/model"
	"github.com/forestwatch/forest-monitor/internal/repository"
)

// maxUploadBytes caps a single image file.
const maxUploadBytes = 10 << 20 // 10 MiB

// UploadHandler stores tree photos on disk and records their metadata.
// A multi-file upload isolates failures per file: good files are kept
// even when a sibling fails validation or disk write.
type UploadHandler struct {
	Cfg    config.Config
	Trees  *repository.TreeRepo
	Images *repository.TreeImageRepo
	Audit  *repository.AuditRepo
}

// NewUploadHandler constructs an UploadHandler.
func NewUploadHandler(cfg config.Config, trees *repository.TreeRepo, images *repository.TreeImageRepo, audit *repository.AuditRepo) *UploadHandler {
	if trees == nil || images == nil || audit == nil {
		panic("nil dependency passed to NewUploadHandler")
	}
	return &UploadHandler{Cfg: cfg, Trees: trees, Images: images, Audit: audit}
}

type imagePart struct {
	ID        uint64 `json:"id"`
	TreeID    uint64 `json:"treeId"`
	FilePath  string `json:"filePath"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	Kind      string `json:"kind"`
	Tags      string `json:"tags,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func toImagePart(img model.TreeImage) imagePart {
	return imagePart{
		ID:        img.ID,
		TreeID:    img.TreeID,
		FilePath:  img.FilePath,
		MimeType:  img.MimeType,
		SizeBytes: img.SizeBytes,
		Kind:      img.Kind,
		Tags:      img.Tags,
		CreatedAt: img.CreatedAt.UTC().Format(time.RFC3339),
	}
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Upload handles POST /v1/trees/:id/images.  The multipart form carries
// one or more files under the "images" field plus optional "kind" and
// "tags" fields applied to every file.
func (h *UploadHandler) Upload(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	treeID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	ctx := c.Request().Context()
	t, err := h.Trees.GetByID(ctx, treeID)
	if errors.Is(err, sql.ErrNoRows) {
		return respondError(c, http.StatusNotFound, "tree not found")
	}
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if !t.IsActive {
		return respondError(c, http.StatusNotFound, "tree not found")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "multipart form is required")
	}
	files := form.File["images"]
	if len(files) == 0 {
		return respondError(c, http.StatusBadRequest, "at least one file is required under the images field")
	}
	kind := c.FormValue("kind")
	if kind == "" {
		kind = model.ImageOther
	}
	if !model.ValidImageKind(kind) {
		return respondError(c, http.StatusBadRequest, "invalid image kind")
	}
	tags := c.FormValue("tags")

	dir := filepath.Join(h.Cfg.UploadDir, "trees", strconv.FormatUint(treeID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}

	var saved []imagePart
	var failed []rowError
	for i, fh := range files {
		img, err := h.saveOne(c, fh, dir, treeID, userID, kind, tags)
		if err != nil {
			failed = append(failed, rowError{Index: i, Field: fh.Filename, Message: err.Error()})
			continue
		}
		saved = append(saved, toImagePart(*img))
	}

	if len(saved) > 0 {
		if err := h.Audit.Insert(ctx, &model.AuditLog{
			UserID: userID, Action: model.ActionUpload, Resource: "tree_image",
			ResourceID: strconv.FormatUint(treeID, 10),
			Detail:     fmt.Sprintf(`{"saved":%d,"failed":%d}`, len(saved), len(failed)),
		}); err != nil {
			c.Logger().Errorf("audit upload for tree %d: %v", treeID, err)
		}
	}

	status := http.StatusCreated
	if len(saved) == 0 {
		status = http.StatusBadRequest
	}
	return c.JSON(status, echo.Map{
		"success": len(saved) > 0,
		"message": fmt.Sprintf("%d uploaded, %d failed", len(saved), len(failed)),
		"data":    echo.Map{"images": saved},
		"errors":  failed,
	})
}

// saveOne validates, writes and records a single file.  The database row
// is only written after the file is safely on disk; a failed insert
// removes the orphan file.
func (h *UploadHandler) saveOne(c echo.Context, fh *multipart.FileHeader, dir string, treeID, userID uint64, kind, tags string) (*model.TreeImage, error) {
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Sniff the real content type rather than trusting the client header.
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	mimeType := http.DetectContentType(head[:n])
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	ext, ok := allowedImageTypes[mimeType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type %s", mimeType)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	name := uniqueFileName(ext)
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > maxUploadBytes {
		err = fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	img := &model.TreeImage{
		TreeID:     treeID,
		FilePath:   path,
		ThumbPath:  path,
		MimeType:   mimeType,
		SizeBytes:  written,
		Kind:       kind,
		Tags:       tags,
		UploadedBy: userID,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Images.Insert(c.Request().Context(), img); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return img, nil
}

// uniqueFileName builds a collision-resistant name from the current time
// and random bytes.
func uniqueFileName(ext string) string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), hex.EncodeToString(b), ext)
}

// ListImages handles GET /v1/trees/:id/images.
func (h *UploadHandler) ListImages(c echo.Context) error {
	treeID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid tree id")
	}
	imgs, err := h.Images.ListByTree(c.Request().Context(), treeID)
	if err != nil {
		return internalError(c, h.Cfg.IsProd(), err)
	}
	parts := make([]imagePart, len(imgs))
	for i, img := range imgs {
		parts[i] = toImagePart(img)
	}
	return respond(c, http.StatusOK, "images", echo.Map{"images": parts})
}

// DeleteImage handles DELETE /v1/trees/:id/images/:imageId (soft delete;
// the file stays on disk).
func (h *UploadHandler) DeleteImage(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "unauthorized")
	}
	imageID, err := pathID(c, "imageId")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "invalid image id")
	}
	ctx := c.Request().Context()
	if err := h.Images.SoftDelete(ctx, imageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return respondError(c, http.StatusNotFound, "image not found")
		}
		return internalError(c, h.Cfg.IsProd(), err)
	}
	if err := h.Audit.Insert(ctx, &model.AuditLog{
		UserID: userID, Action: model.ActionDelete, Resource: "tree_image",
		ResourceID: strconv.FormatUint(imageID, 10),
	}); err != nil {
		c.Logger().Errorf("audit image delete %d: %v", imageID, err)
	}
	return respond(c, http.StatusOK, "image deleted", nil)
}
