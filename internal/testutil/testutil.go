// Package testutil provides shared test helpers: temporary cache databases,
// state directories and an in-memory VaultLinks API.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/vaultlinks/internal/cachestore"
	"github.com/starford/vaultlinks/internal/localstore"
)

// TestCacheDB creates a temporary SQLite cache database that is automatically cleaned up.
func TestCacheDB(t *testing.T) *cachestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vaultlinks-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := cachestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStateDir creates a temporary client state directory.
func TestStateDir(t *testing.T) (string, *localstore.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := localstore.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Logger returns a logger that discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
