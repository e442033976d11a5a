// Package migrations embeds the schema of the local inbox database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
