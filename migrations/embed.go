// Package migrations embeds the registry schema so the binary is self-contained
// regardless of its working directory.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time, applied in name order.
//
//go:embed *.sql
var FS embed.FS
