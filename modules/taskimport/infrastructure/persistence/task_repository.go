package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const (
	nextSortOrderQuery = `SELECT COALESCE(MAX(sort_order), -1) + 1 FROM tasks WHERE project_id = $1`
	insertTaskQuery    = `
		INSERT INTO tasks (id, project_id, name, description, priority_id, status_id, sort_order,
		                   start_date, end_date, reporter_id, created_at, updated_at)
		VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id
	`
	insertAssigneeQuery = `
		INSERT INTO tasks_assignees (task_id, project_member_id, team_member_id, assigned_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
)

type TaskRepository struct{}

func NewTaskRepository() services.TaskRepository {
	return &TaskRepository{}
}

func (r *TaskRepository) NextSortOrder(ctx context.Context, projectID uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var next int
	if err := tx.QueryRow(ctx, nextSortOrderQuery, projectID).Scan(&next); err != nil {
		return 0, gerrors.Wrap(err, "failed to compute sort order")
	}
	return next, nil
}

func (r *TaskRepository) Insert(ctx context.Context, task services.TaskInsert) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	dbTask := toDBTask(task)
	var suggested uuid.NullUUID
	if dbTask.ID != uuid.Nil {
		suggested = uuid.NullUUID{UUID: dbTask.ID, Valid: true}
	}

	var id uuid.UUID
	if err := tx.QueryRow(
		ctx,
		insertTaskQuery,
		suggested,
		dbTask.ProjectID,
		dbTask.Name,
		dbTask.Description,
		dbTask.PriorityID,
		dbTask.StatusID,
		dbTask.SortOrder,
		dbTask.StartDate,
		dbTask.EndDate,
		dbTask.ReporterID,
	).Scan(&id); err != nil {
		return uuid.Nil, gerrors.Wrap(err, "failed to insert task")
	}
	return id, nil
}

func (r *TaskRepository) InsertAssignee(ctx context.Context, taskID, projectMemberID, teamMemberID, assignedBy uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertAssigneeQuery, taskID, projectMemberID, teamMemberID, assignedBy); err != nil {
		return gerrors.Wrap(err, "failed to assign task")
	}
	return nil
}
