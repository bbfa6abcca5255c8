// Package migrations embeds the goose migrations for the agent's local database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
