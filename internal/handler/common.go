package handler // handler defines http handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// maxBulkRows is the hard ceiling on documents affected by one bulk
// call.  Exceeding it is a client error, never a partial success.
const maxBulkRows = 1000

// msgTooManyTrees is returned whenever a bulk selection or batch would
// exceed maxBulkRows.
const msgTooManyTrees = "Maximum 1000 trees allowed per bulk operation"

// msgNoTreesMatched is returned when a bulk selection resolves to zero trees.
const msgNoTreesMatched = "No trees found matching the criteria"

// rowError describes one failing row of a bulk request.  The caller can
// fix the listed rows and resubmit; validation never stops at the first
// bad row.
type rowError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// respond writes the standard success envelope.
func respond(c echo.Context, status int, message string, data interface{}) error {
	body := echo.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return c.JSON(status, body)
}

// respondError writes the standard failure envelope.
func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

// respondRowErrors writes a 400 with the exhaustive per-row error list.
func respondRowErrors(c echo.Context, message string, errs []rowError) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"success": false,
		"message": message,
		"errors":  errs,
	})
}

// internalError hides detail from the caller in production mode and
// exposes the underlying error otherwise.
func internalError(c echo.Context, prod bool, err error) error {
	c.Logger().Errorf("internal error: %v", err)
	if prod {
		return respondError(c, http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"success": false,
		"message": "internal server error",
		"error":   err.Error(),
	})
}

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getRole extracts the role claim from echo.Context.
func getRole(c echo.Context) string {
	if r, ok := c.Get("role").(string); ok {
		return r
	}
	return ""
}

// isAdmin reports whether the current caller holds the ADMIN role.
func isAdmin(c echo.Context) bool { return getRole(c) == model.RoleAdmin }

// pageParams reads limit/offset query parameters with bounds applied.
// Listing endpoints default to 50 rows and never return more than 200.
func pageParams(c echo.Context) (int, int) {
	limit := 50
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// pathID parses the named path parameter as a positive integer.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// newTreeCode generates a unique external code for a tree created
// without one.  Timestamp plus random suffix avoids collisions by
// construction.
func newTreeCode() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("TR-%s-%s", time.Now().UTC().Format("20060102150405"), hex.EncodeToString(buf))
}

// parseDate accepts YYYY-MM-DD or RFC3339 timestamps.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
