package report

import (
	"fmt"

	"github.com/google/uuid"
)

type IssueType string

const (
	IssueNoTasks            IssueType = "no_tasks"
	IssueMissingName        IssueType = "missing_name"
	IssueInvalidDate        IssueType = "invalid_date"
	IssueDateOrder          IssueType = "date_order"
	IssueUnmappedValue      IssueType = "unmapped_value"
	IssueUnknownPriority    IssueType = "unknown_priority"
	IssueUnknownStatus      IssueType = "unknown_status"
	IssueInvalidID          IssueType = "invalid_id"
	IssueDuplicateID        IssueType = "duplicate_id"
	IssueDuplicateMapping   IssueType = "duplicate_mapping"
	IssueAssigneeUnresolved IssueType = "assignee_unresolved"
	IssueAssigneeNotMember  IssueType = "assignee_not_project_member"
	IssueProvisionFailed    IssueType = "user_provisioning_failed"
	IssueImportError        IssueType = "import_error"
)

// Issue is a single error or warning surfaced to the caller.
type Issue struct {
	Type     IssueType `json:"type"`
	Field    string    `json:"field,omitempty"`
	Message  string    `json:"message"`
	Row      int       `json:"row,omitempty"`
	TaskName string    `json:"task_name,omitempty"`
	Value    string    `json:"value,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// Validation is the outcome of the validation gate.
type Validation struct {
	IsValid    bool    `json:"is_valid"`
	TotalTasks int     `json:"total_tasks"`
	ValidTasks int     `json:"valid_tasks"`
	Errors     []Issue `json:"errors"`
	Warnings   []Issue `json:"warnings"`
}

// Report is the immutable result of a committed import.
type Report struct {
	importedCount   int
	insertedTaskIDs []uuid.UUID
	warnings        []Issue
	errors          []Issue
	projectName     string
	message         string
}

// New builds a report, defaulting the message from the count and project.
func New(importedCount int, taskIDs []uuid.UUID, warnings, errs []Issue, projectName, message string) *Report {
	if message == "" {
		message = fmt.Sprintf("Successfully imported %d tasks to %s", importedCount, projectName)
	}
	return &Report{
		importedCount:   importedCount,
		insertedTaskIDs: append([]uuid.UUID(nil), taskIDs...),
		warnings:        append([]Issue(nil), warnings...),
		errors:          append([]Issue(nil), errs...),
		projectName:     projectName,
		message:         message,
	}
}

func (r *Report) ImportedCount() int { return r.importedCount }

func (r *Report) InsertedTaskIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), r.insertedTaskIDs...)
}

func (r *Report) Warnings() []Issue { return append([]Issue(nil), r.warnings...) }

func (r *Report) Errors() []Issue { return append([]Issue(nil), r.errors...) }

func (r *Report) ProjectName() string { return r.projectName }

func (r *Report) Message() string { return r.message }
