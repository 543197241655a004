// Package migrations embeds the versioned schema for the migrate binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
