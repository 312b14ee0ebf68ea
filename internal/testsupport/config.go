package testsupport

import (
	"path/filepath"
	"testing"

	"medialib/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.BackupDir = filepath.Join(base, "backups")
	cfgVal.Migration.MinFreeSpaceMiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithScanPageSize shrinks the verifier/repair page size so tests cross page boundaries.
func WithScanPageSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Migration.ScanPageSize = size
	}
}

// WithUploadSource overrides the upload source written by metadata backfill.
func WithUploadSource(source string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Migration.DefaultUploadSource = source
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
