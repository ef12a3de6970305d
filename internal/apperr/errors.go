// Package apperr defines sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrStaleTask = errors.New("stale task reference")
)
