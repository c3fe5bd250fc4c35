// Package testsupport provides shared helpers for package tests: temp-rooted
// configurations and stub tool binaries on PATH.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"rollscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RootDir = filepath.Join(base, "rolls")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Download.BackoffSeconds = 0
	cfgVal.Process.Workers = 1

	builder := &configBuilder{cfg: &cfgVal}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPurlBase points manifest and image downloads at a test server.
func WithPurlBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Download.PurlBase = baseURL
	}
}

// WithSkipDruids sets the skip list on the test config.
func WithSkipDruids(druids ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Process.SkipDruids = druids
	}
}

// PrependPath puts dir at the front of PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// StubTool writes a single stub executable into dir and returns its path.
func StubTool(t testing.TB, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
