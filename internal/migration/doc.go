// Package migration audits and repairs the move from scene-embedded asset
// pointers to the mapping table.
//
// Verifier produces a Report of data-quality findings without changing
// anything. Repairer fixes what the report finds: it backfills missing asset
// metadata, rebuilds mappings from legacy scene pointers, collapses duplicate
// mappings, and exports or restores whole-library snapshots.
//
// Repairs are best-effort. A single asset or mapping that fails is logged and
// skipped; only failing to enumerate rows stops a run. Every repair is
// idempotent, so running it twice changes nothing the second time.
//
// Operator-driven repair and import runs hold an exclusive file lock (see
// AcquireLock) so two runs against the same data directory cannot overlap.
package migration
