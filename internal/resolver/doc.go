// Package resolver answers "which asset does this scene show right now" for
// each asset kind.
//
// Each kind walks an explicit fallback chain:
//
//  1. mapping: the canonical mapping row for (script, scene, kind). When the
//     row points at an asset that no longer exists the slot is absent and the
//     chain stops there.
//  2. legacy: only when no mapping row exists, and only for image and video,
//     the pointer embedded in the scene is used if its asset still exists.
//  3. absent.
//
// Every resolved slot carries a handle from the handles registry. The caller
// owns it; View releases the previous resolution's handles on every refresh.
package resolver
