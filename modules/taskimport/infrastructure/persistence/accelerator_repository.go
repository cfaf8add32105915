package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const routineExistsQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE p.proname = $1 AND n.nspname = $2
	)
`

// AcceleratorRepository calls the optional import routines installed in schema.
type AcceleratorRepository struct {
	schema string
}

func NewAcceleratorRepository(schema string) services.AcceleratorRepository {
	if schema == "" {
		schema = "public"
	}
	return &AcceleratorRepository{schema: schema}
}

func (r *AcceleratorRepository) RoutineExists(ctx context.Context, routine string) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, routineExistsQuery, routine, r.schema).Scan(&exists); err != nil {
		return false, gerrors.Wrap(err, "failed to probe routine")
	}
	return exists, nil
}

func (r *AcceleratorRepository) CallTasksRoutine(ctx context.Context, routine string, projectID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error) {
	return r.call(ctx, routine, projectID, payload, actorID)
}

func (r *AcceleratorRepository) CallUsersRoutine(ctx context.Context, routine string, teamID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error) {
	return r.call(ctx, routine, teamID, payload, actorID)
}

func (r *AcceleratorRepository) call(ctx context.Context, routine string, scopeID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + pgx.Identifier{r.schema, routine}.Sanitize() + "($1, $2::jsonb, $3)::text"

	var raw *string
	if err := tx.QueryRow(ctx, query, scopeID, string(payload), actorID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, services.ErrRoutineNoResult
		}
		return nil, gerrors.Wrapf(err, "failed to call %s", routine)
	}
	if raw == nil {
		return nil, services.ErrRoutineNoResult
	}
	return []byte(*raw), nil
}
