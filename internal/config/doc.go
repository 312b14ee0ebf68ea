// Package config loads, normalizes, and validates medialib configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the MEDIALIB_DATA_DIR environment
// fallback. The Config type centralizes every knob the CLI and the library
// packages need so the database location, log routing, and repair defaults are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
