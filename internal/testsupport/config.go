package testsupport

import (
	"path/filepath"
	"testing"

	"veriflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.Sync.StaggerMillis = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxAutoRetries overrides the automatic retry budget on the test config.
func WithMaxAutoRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.MaxAutoRetries = n
	}
}

// WithConcurrency overrides the drain concurrency on the test config.
func WithConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.Concurrency = n
	}
}
