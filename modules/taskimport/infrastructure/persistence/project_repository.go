package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/models"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const projectForTeamQuery = `SELECT id, team_id, name FROM projects WHERE id = $1 AND team_id = $2`

type ProjectRepository struct{}

func NewProjectRepository() services.ProjectRepository {
	return &ProjectRepository{}
}

func (r *ProjectRepository) GetForTeam(ctx context.Context, projectID, teamID uuid.UUID) (services.Project, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Project{}, err
	}

	var row models.Project
	if err := tx.QueryRow(ctx, projectForTeamQuery, projectID, teamID).Scan(&row.ID, &row.TeamID, &row.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return services.Project{}, services.ErrProjectNotFound
		}
		return services.Project{}, gerrors.Wrap(err, "failed to load project")
	}
	return toDomainProject(row), nil
}
