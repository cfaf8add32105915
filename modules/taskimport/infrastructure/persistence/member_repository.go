package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/taskimport/modules/taskimport/infrastructure/persistence/models"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const (
	memberSelect = `
		SELECT tm.id, pm.id, u.id, u.name, LOWER(u.email)
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		LEFT JOIN project_members pm ON pm.team_member_id = tm.id AND pm.project_id = $1
		WHERE tm.team_id = $2 AND tm.active`
	membersByEmailQuery = memberSelect + ` AND LOWER(u.email) = ANY($3::text[])`
	membersByIDQuery    = memberSelect + ` AND tm.id = ANY($3::uuid[])`
	teamMembersQuery    = `
		SELECT tm.id, NULL::uuid, u.id, u.name, LOWER(u.email)
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1 AND tm.active
		ORDER BY u.name, u.email`
)

type MemberRepository struct{}

func NewMemberRepository() services.MemberRepository {
	return &MemberRepository{}
}

func (r *MemberRepository) FindByEmails(ctx context.Context, teamID, projectID uuid.UUID, emails []string) ([]services.Member, error) {
	emails = lowerAll(emails)
	if len(emails) == 0 {
		return nil, nil
	}
	return r.queryMembers(ctx, membersByEmailQuery, projectID, teamID, emails)
}

func (r *MemberRepository) FindByIDs(ctx context.Context, teamID, projectID uuid.UUID, teamMemberIDs []uuid.UUID) ([]services.Member, error) {
	if len(teamMemberIDs) == 0 {
		return nil, nil
	}
	return r.queryMembers(ctx, membersByIDQuery, projectID, teamID, teamMemberIDs)
}

func (r *MemberRepository) ListTeamMembers(ctx context.Context, teamID uuid.UUID) ([]services.Member, error) {
	return r.queryMembers(ctx, teamMembersQuery, teamID)
}

func (r *MemberRepository) queryMembers(ctx context.Context, query string, args ...any) ([]services.Member, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to query members")
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (services.Member, error) {
		var m models.TeamMember
		if err := row.Scan(&m.TeamMemberID, &m.ProjectMemberID, &m.UserID, &m.Name, &m.Email); err != nil {
			return services.Member{}, err
		}
		return toDomainMember(m), nil
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to scan members")
	}
	return members, nil
}
