// Package migrations embeds the SQL migration files so the binaries can
// apply the schema without files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
