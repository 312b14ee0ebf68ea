// Package library persists media assets, scripts, and the script/scene to
// asset mapping table in SQLite.
//
// Assets live in one table per Kind (images, videos, audios); every table name
// is derived from Kind through a single accessor so callers never branch on
// raw strings. The mapping table links (script, scene, kind) to an asset id.
// Asset references are weak: nothing cascades when an asset is deleted, which
// is why the migration package audits orphaned and dangling rows.
//
// Write transactions start with BEGIN IMMEDIATE so a lookup followed by a
// write inside WithMappingTx cannot interleave with another writer. Busy
// errors are retried with backoff.
//
// Schema changes bump the version in schema.go; databases created with an
// older schema fail to open with ErrSchemaMismatch.
package library
