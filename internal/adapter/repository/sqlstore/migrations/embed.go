package migrations

import "embed"

// FS contains the schema shared by the postgres, mysql and sqlite stores.
//
//go:embed *.sql
var FS embed.FS
