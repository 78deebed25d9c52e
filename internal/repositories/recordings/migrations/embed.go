// Package migrations embeds the SQLite schema migrations for the recordings
// journal.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
