// Package migrations содержит SQL-схему, встраиваемую в бинарники.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
