// Package migrations embeds the registry schema migrations applied by goose
// at startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
