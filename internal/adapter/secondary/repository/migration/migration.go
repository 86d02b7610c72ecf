// Package migration holds the SQLite schema scripts, applied in name order.
package migration

import "embed"

//go:embed *.sql
var Scripts embed.FS
