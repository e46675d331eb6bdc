// Package migrations embeds the SQL files that create the Postgres document
// tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
