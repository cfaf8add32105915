package candidate

import (
	"time"

	"github.com/google/uuid"
)

// RawRow is one source line keyed by column header.
type RawRow map[string]string

// Task is a projected row awaiting validation and commit.
type Task struct {
	// SourceRow is the 1-based data row the task came from.
	SourceRow   int
	Name        string
	Description string
	Priority    string
	Status      string
	DueDate     string
	StartDate   string
	Assignee    string
	SuggestedID string

	// Set by the validation gate.
	DueAt   *time.Time
	StartAt *time.Time
	ID      uuid.UUID
}

// HasSuggestedID reports whether the row carried a usable task id.
func (t Task) HasSuggestedID() bool {
	return t.ID != uuid.Nil
}

type DefectKind string

const (
	DefectUnmappedValue    DefectKind = "unmapped_value"
	DefectDuplicateMapping DefectKind = "duplicate_mapping"
)

// Defect aggregates one projection problem across every row it affects.
type Defect struct {
	Kind  DefectKind
	Field string
	Value string
	Rows  []int
}
