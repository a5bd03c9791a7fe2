package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"veriflow/internal/config"
	"veriflow/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewArtifact writes a placeholder artifact payload into the config's
// artifact directory and enqueues it.
func NewArtifact(t testing.TB, store *queue.Store, cfg *config.Config, kind queue.Kind, name string) *queue.Item {
	t.Helper()

	payload := filepath.Join(cfg.Paths.ArtifactDir, name)
	if err := os.MkdirAll(cfg.Paths.ArtifactDir, 0o755); err != nil {
		t.Fatalf("mkdir artifact dir: %v", err)
	}
	data := []byte("artifact payload for " + name)
	if err := os.WriteFile(payload, data, 0o644); err != nil {
		t.Fatalf("write artifact payload: %v", err)
	}

	item, err := store.Enqueue(context.Background(), kind, payload, int64(len(data)))
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
