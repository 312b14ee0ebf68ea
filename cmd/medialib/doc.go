// Package main hosts the medialib operator CLI.
//
// The Cobra command tree wraps the library packages for humans: verifying the
// migration state of a database, running repairs, taking and restoring
// backups, and inspecting or editing the asset links of individual scenes.
// Configuration loading, logger construction, the store connection, and the
// operator lock live in the command context so subcommands only describe
// their own output.
package main
