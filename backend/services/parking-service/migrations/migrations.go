package migrations

import "embed"

// FS holds the service schema, applied in version order by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
