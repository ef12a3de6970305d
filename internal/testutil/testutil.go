// Package testutil provides shared test helpers for setting up vaults and
// snapshot mirror databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/vault"
)

// TestDB creates a temporary SQLite mirror that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory seeded with the given notes
// (vault-relative path → content) and returns its root plus a provider.
func TestVault(t *testing.T, notes map[string]string) (string, *vault.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	for path, content := range notes {
		abs := filepath.Join(vaultDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := vault.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, fs
}
