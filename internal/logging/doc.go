// Package logging assembles structured slog loggers and formatting helpers used
// across medialib packages.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so repair and verification code
// can tag log lines with the operation name and run identifier. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// records with the same field names (script_id, scene_id, asset_kind,
// asset_id) as the rest of the system.
package logging
