package models

import (
	"database/sql"

	"github.com/google/uuid"
)

type Project struct {
	ID     uuid.UUID
	TeamID uuid.UUID
	Name   string
}

type TeamMember struct {
	TeamMemberID    uuid.UUID
	ProjectMemberID uuid.NullUUID
	UserID          uuid.UUID
	Name            string
	Email           string
}

type TaskPriority struct {
	ID        uuid.UUID
	Name      string
	Value     int
	ColorCode string
}

type TaskStatus struct {
	ID        uuid.UUID
	Name      string
	Category  string
	IsDone    bool
	SortOrder int
}

type Task struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Name        string
	Description sql.NullString
	PriorityID  uuid.UUID
	StatusID    uuid.UUID
	SortOrder   int
	StartDate   sql.NullTime
	EndDate     sql.NullTime
	ReporterID  uuid.UUID
}
