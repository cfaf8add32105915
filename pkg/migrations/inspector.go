package migrations

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

const installedRoutinesQuery = `
	SELECT DISTINCT p.proname
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname = ? AND p.proname IN (?)
	ORDER BY p.proname`

// RoutineStatus reports whether an optional routine is installed.
type RoutineStatus struct {
	Routine   string
	Installed bool
}

// Inspector reads and installs server-side routines in one schema.
type Inspector struct {
	db     *sqlx.DB
	schema string
}

func NewInspector(db *sqlx.DB, schema string) *Inspector {
	if schema == "" {
		schema = "public"
	}
	return &Inspector{db: db, schema: schema}
}

func (i *Inspector) Routines(ctx context.Context, names ...string) ([]RoutineStatus, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(installedRoutinesQuery, i.schema, names)
	if err != nil {
		return nil, errors.Wrap(err, "build routine query")
	}
	var installed []string
	if err := i.db.SelectContext(ctx, &installed, i.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list routines")
	}

	found := make(map[string]bool, len(installed))
	for _, name := range installed {
		found[name] = true
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make([]RoutineStatus, 0, len(sorted))
	for _, name := range sorted {
		out = append(out, RoutineStatus{Routine: name, Installed: found[name]})
	}
	return out, nil
}

// Install runs routine definitions in one transaction, keyed by routine name.
func (i *Inspector) Install(ctx context.Context, scripts map[string]string) error {
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := i.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin install")
	}
	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+quoteIdent(i.schema)); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "set search path")
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, scripts[name]); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "install %s", name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit install")
	}
	return nil
}

func quoteIdent(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}
