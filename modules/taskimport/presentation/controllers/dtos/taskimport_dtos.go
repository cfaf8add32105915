package dtos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/constants"
)

// ImportRequest is the body of the validate and import endpoints.
type ImportRequest struct {
	Rows []map[string]string `json:"rows" validate:"required,min=1"`
	mapping.Set
}

type SuggestRequest struct {
	Headers []string            `json:"headers" validate:"required,min=1,dive,required"`
	Rows    []map[string]string `json:"rows"`
}

// Ok validates the request shape and returns messages keyed by JSON field.
func Ok(v any) (map[string]string, bool) {
	errs := map[string]string{}
	if err := constants.Validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs["request"] = err.Error()
			return errs, false
		}
		for _, fe := range verrs {
			errs[strings.ToLower(fe.Field())] = fmt.Sprintf("failed on %q", fe.Tag())
		}
		return errs, false
	}
	return errs, true
}

type StatusResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	SortOrder int       `json:"sort_order"`
	IsDone    bool      `json:"is_done"`
}

type PriorityResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Value int       `json:"value"`
	Color string    `json:"color"`
}

type MemberResponse struct {
	TeamMemberID uuid.UUID `json:"team_member_id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
}

type TemplateResponse struct {
	ProjectName    string                `json:"project_name"`
	Statuses       []StatusResponse      `json:"project_statuses"`
	Priorities     []PriorityResponse    `json:"priorities"`
	TeamMembers    []MemberResponse      `json:"team_members"`
	RequiredFields []mapping.TargetField `json:"required_fields"`
	OptionalFields []mapping.TargetField `json:"optional_fields"`
}

type ImportResponse struct {
	Message            string         `json:"message"`
	ImportedCount      int            `json:"imported_count"`
	InsertedTaskIDs    []uuid.UUID    `json:"inserted_task_ids"`
	ValidationWarnings []report.Issue `json:"validation_warnings"`
	ImportErrors       []report.Issue `json:"import_errors"`
	ProjectName        string         `json:"project_name"`
}

// ValidationFailedResponse is returned when the gate rejects an import.
type ValidationFailedResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Errors   []report.Issue    `json:"errors"`
	Warnings []report.Issue    `json:"warnings"`
	Meta     map[string]string `json:"meta,omitempty"`
}

type ParseResponse struct {
	Format   string              `json:"format"`
	Headers  []string            `json:"headers"`
	Rows     []map[string]string `json:"rows"`
	RowCount int                 `json:"row_count"`
}
