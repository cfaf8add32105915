// Package schema embeds the goose migrations of the task import store.
package schema

import "embed"

//go:embed *.sql
var FS embed.FS
