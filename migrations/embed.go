// Package migrations embeds the hamonitor SQL schema migrations so the binary
// can migrate its database without the files on disk.
package migrations

import "embed"

// FS holds the migration files at its root. Pass it to database.DB.Migrate
// with dir ".".
//
//go:embed *.sql
var FS embed.FS
