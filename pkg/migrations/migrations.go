// Package migrations applies the embedded goose migrations and inspects the
// optional import routines of a database.
package migrations

import (
	"context"
	"io/fs"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

// Open connects through lib/pq. goose and the inspector run on database/sql.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

type Runner struct {
	db     *sqlx.DB
	fsys   fs.FS
	logger *logrus.Logger
}

func NewRunner(db *sqlx.DB, fsys fs.FS, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{db: db, fsys: fsys, logger: logger}
}

type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

func (r *Runner) provider() (*goose.Provider, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, r.db.DB, r.fsys)
	if err != nil {
		return nil, errors.Wrap(err, "create migration provider")
	}
	return p, nil
}

// Up applies every pending migration and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	p, err := r.provider()
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "apply migrations")
	}
	for _, res := range results {
		r.logger.WithFields(logrus.Fields{
			"version":  res.Source.Version,
			"path":     res.Source.Path,
			"duration": res.Duration,
		}).Info("migration applied")
	}
	return len(results), nil
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	p, err := r.provider()
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "migration status")
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}
