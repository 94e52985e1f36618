// Package migrations embeds the goose schema migrations so deployments
// carry their schema with the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
