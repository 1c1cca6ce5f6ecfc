// Package migrations embeds the room directory schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
