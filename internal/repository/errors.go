// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation, while ErrNotFound signals that
// a referenced row does not exist or is inactive.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation their
// role does not permit. Handlers should translate this into an HTTP 403
// response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when a referenced resource does not exist or
// has been soft deleted. Handlers should translate this into an HTTP
// 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as creating a tree with a code that already
// exists. Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
