// Package preflight provides readiness checks for the filesystem paths and
// database medialib depends on.
//
// These checks run in two contexts:
//   - The migration package calls CheckFreeSpace before writing a backup so a
//     full disk fails fast instead of leaving a truncated export.
//   - The CLI "medialib health" command runs RunAll to display every check.
package preflight
