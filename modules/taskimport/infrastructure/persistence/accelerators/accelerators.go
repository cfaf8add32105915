// Package accelerators ships the optional server-side import routines. They
// are installed on demand and never run as migrations.
package accelerators

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var scripts embed.FS

// Script is one installable routine definition.
type Script struct {
	Routine string
	SQL     string
}

// Scripts returns every routine script ordered by routine name.
func Scripts() ([]Script, error) {
	entries, err := fs.ReadDir(scripts, ".")
	if err != nil {
		return nil, err
	}
	out := make([]Script, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		raw, err := fs.ReadFile(scripts, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Script{Routine: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Routine < out[j].Routine })
	return out, nil
}
