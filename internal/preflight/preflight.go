package preflight

import (
	"context"

	"medialib/internal/config"
	"medialib/internal/library"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config. The database
// check is skipped when store is nil.
func RunAll(ctx context.Context, cfg *config.Config, store *library.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Backups are created lazily; before the first export only the free space matters.
	if dirExists(cfg.Paths.BackupDir) {
		results = append(results, CheckDirectoryAccess("Backup directory", cfg.Paths.BackupDir))
	}

	minFree := uint64(cfg.Migration.MinFreeSpaceMiB) << 20
	results = append(results, CheckFreeSpace("Data disk space", cfg.Paths.DataDir, minFree))

	if store != nil {
		results = append(results, CheckDatabase(ctx, store))
	}

	return results
}
