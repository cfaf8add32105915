package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProjectNotFound  = errors.New("project not found or access denied")
	ErrRoutineNoResult  = errors.New("accelerator returned no usable result")
	ErrUnknownVocabName = errors.New("unknown vocabulary name")
)

type Project struct {
	ID     uuid.UUID
	TeamID uuid.UUID
	Name   string
}

// Member is a team member, optionally also a member of the import's project.
type Member struct {
	TeamMemberID    uuid.UUID
	ProjectMemberID uuid.NullUUID
	UserID          uuid.UUID
	Name            string
	Email           string
}

type Priority struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Value int       `json:"value"`
	Color string    `json:"color"`
}

type Status struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	SortOrder int       `json:"sort_order"`
	IsDone    bool      `json:"is_done"`
}

type TaskInsert struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Name        string
	Description string
	PriorityID  uuid.UUID
	StatusID    uuid.UUID
	SortOrder   int
	StartDate   *time.Time
	DueDate     *time.Time
	ReporterID  uuid.UUID
}

type ProjectRepository interface {
	// GetForTeam returns ErrProjectNotFound when the project does not belong to the team.
	GetForTeam(ctx context.Context, projectID, teamID uuid.UUID) (Project, error)
}

type VocabularyRepository interface {
	// Lookup resolves priority and project status names to ids in one round trip.
	Lookup(ctx context.Context, projectID uuid.UUID, priorities, statuses []string) (Vocabulary, error)
	ListPriorities(ctx context.Context) ([]Priority, error)
	ListStatuses(ctx context.Context, projectID uuid.UUID) ([]Status, error)
}

type MemberRepository interface {
	FindByEmails(ctx context.Context, teamID, projectID uuid.UUID, emails []string) ([]Member, error)
	FindByIDs(ctx context.Context, teamID, projectID uuid.UUID, teamMemberIDs []uuid.UUID) ([]Member, error)
	ListTeamMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error)
}

type TaskRepository interface {
	NextSortOrder(ctx context.Context, projectID uuid.UUID) (int, error)
	Insert(ctx context.Context, task TaskInsert) (uuid.UUID, error)
	InsertAssignee(ctx context.Context, taskID, projectMemberID, teamMemberID, assignedBy uuid.UUID) error
}

// AcceleratorRepository talks to optional server-side import routines.
type AcceleratorRepository interface {
	RoutineExists(ctx context.Context, routine string) (bool, error)
	CallTasksRoutine(ctx context.Context, routine string, projectID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error)
	CallUsersRoutine(ctx context.Context, routine string, teamID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error)
}

// Vocabulary maps lower-cased priority and status names to ids for one import.
type Vocabulary struct {
	Priorities map[string]uuid.UUID
	Statuses   map[string]uuid.UUID
}

func NewVocabulary() Vocabulary {
	return Vocabulary{
		Priorities: make(map[string]uuid.UUID),
		Statuses:   make(map[string]uuid.UUID),
	}
}

func vocabKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (v Vocabulary) PriorityID(name string) (uuid.UUID, bool) {
	id, ok := v.Priorities[vocabKey(name)]
	return id, ok
}

func (v Vocabulary) StatusID(name string) (uuid.UUID, bool) {
	id, ok := v.Statuses[vocabKey(name)]
	return id, ok
}

func (v Vocabulary) Empty() bool {
	return len(v.Priorities) == 0 && len(v.Statuses) == 0
}
