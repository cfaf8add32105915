package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/models"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const (
	// Both vocabularies in one round trip, tagged by kind.
	vocabularyLookupQuery = `
		SELECT 'priority' AS kind, LOWER(name) AS name, id FROM task_priorities WHERE LOWER(name) = ANY($2::text[])
		UNION ALL
		SELECT 'status' AS kind, LOWER(name) AS name, id FROM task_statuses WHERE project_id = $1 AND LOWER(name) = ANY($3::text[])
	`
	listPrioritiesQuery = `SELECT id, name, value, color_code FROM task_priorities ORDER BY value, name`
	listStatusesQuery   = `SELECT id, name, category, is_done, sort_order FROM task_statuses WHERE project_id = $1 ORDER BY sort_order, name`
)

type VocabularyRepository struct{}

func NewVocabularyRepository() services.VocabularyRepository {
	return &VocabularyRepository{}
}

func (r *VocabularyRepository) Lookup(ctx context.Context, projectID uuid.UUID, priorities, statuses []string) (services.Vocabulary, error) {
	vocab := services.NewVocabulary()
	if len(priorities) == 0 && len(statuses) == 0 {
		return vocab, nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return services.Vocabulary{}, err
	}
	rows, err := tx.Query(ctx, vocabularyLookupQuery, projectID, lowerAll(priorities), lowerAll(statuses))
	if err != nil {
		return services.Vocabulary{}, gerrors.Wrap(err, "failed to look up vocabulary")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind, name string
			id         uuid.UUID
		)
		if err := rows.Scan(&kind, &name, &id); err != nil {
			return services.Vocabulary{}, gerrors.Wrap(err, "failed to scan vocabulary")
		}
		switch kind {
		case "priority":
			vocab.Priorities[name] = id
		case "status":
			vocab.Statuses[name] = id
		}
	}
	if err := rows.Err(); err != nil {
		return services.Vocabulary{}, gerrors.Wrap(err, "failed to read vocabulary")
	}
	return vocab, nil
}

func (r *VocabularyRepository) ListPriorities(ctx context.Context) ([]services.Priority, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, listPrioritiesQuery)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to list priorities")
	}
	defer rows.Close()

	var out []services.Priority
	for rows.Next() {
		var m models.TaskPriority
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.ColorCode); err != nil {
			return nil, gerrors.Wrap(err, "failed to scan priority")
		}
		out = append(out, toDomainPriority(m))
	}
	return out, rows.Err()
}

func (r *VocabularyRepository) ListStatuses(ctx context.Context, projectID uuid.UUID) ([]services.Status, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, listStatusesQuery, projectID)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to list statuses")
	}
	defer rows.Close()

	var out []services.Status
	for rows.Next() {
		var m models.TaskStatus
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.IsDone, &m.SortOrder); err != nil {
			return nil, gerrors.Wrap(err, "failed to scan status")
		}
		out = append(out, toDomainStatus(m))
	}
	return out, rows.Err()
}
