// AngelaMos | 2026
// migrations.go

// Package migrations embeds the goose SQL migrations for the Postgres store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
