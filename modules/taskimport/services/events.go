package services

import (
	"github.com/google/uuid"
)

// ImportCommittedEvent is published once the import transaction has committed.
type ImportCommittedEvent struct {
	ProjectID     uuid.UUID
	ProjectName   string
	ActorID       uuid.UUID
	TeamID        uuid.UUID
	Strategy      string
	ImportedCount int
	TaskIDs       []uuid.UUID
	Warnings      int
}
