package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/composables"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// ValidationFailedError carries the gate result of a rejected import.
type ValidationFailedError struct {
	Validation report.Validation
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("CSV data validation failed: %d errors", len(e.Validation.Errors))
}

// classifyError turns any pipeline failure into a ServiceError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var valErr *ValidationFailedError
	if errors.As(err, &valErr) {
		return valErr
	}

	switch {
	case errors.Is(err, composables.ErrNoActor):
		return newServiceError(http.StatusUnauthorized, "IMPORT_UNAUTHENTICATED", "authentication required", err)
	case errors.Is(err, ErrProjectNotFound):
		return newServiceError(http.StatusForbidden, "IMPORT_PROJECT_ACCESS_DENIED", "Project not found or access denied", err)
	case errors.Is(err, mapping.ErrInvalidMapping):
		return newServiceError(http.StatusBadRequest, "IMPORT_INVALID_MAPPING", err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newServiceError(http.StatusServiceUnavailable, "IMPORT_ABORTED", "import aborted before completion", err)
	}
	return mapPgErrorToServiceError(err)
}

func mapPgErrorToServiceError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "IMPORT_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return newServiceError(http.StatusInternalServerError, "IMPORT_FAILED", "Import failed", err)
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == "tasks_pkey" {
			return newServiceError(http.StatusConflict, "IMPORT_TASK_ID_CONFLICT", "a task with a supplied id already exists", err)
		}
		return newServiceError(http.StatusConflict, "IMPORT_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "IMPORT_REFERENCE_NOT_FOUND", "referenced record not found", err)
	case "22007", "22008": // invalid_datetime_format, datetime_field_overflow
		return newServiceError(http.StatusUnprocessableEntity, "IMPORT_INVALID_DATE", "invalid date value", err)
	default:
		return newServiceError(http.StatusInternalServerError, "IMPORT_FAILED", fmt.Sprintf("Import failed (database error %s)", pgErr.Code), err)
	}
}
