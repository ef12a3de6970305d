// Package vault defines the vault file-system abstraction.
package vault

import "github.com/nordmark/raido/internal/models"

// Provider is the interface for vault file operations. Paths are
// vault-relative with forward slashes.
type Provider interface {
	// ScanTree walks the vault and returns the note tree: folders before
	// files, alphabetical by title, hidden entries skipped.
	ScanTree() ([]*models.NoteMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
