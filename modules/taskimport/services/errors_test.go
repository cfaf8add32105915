package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/composables"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"actor", composables.ErrNoActor, http.StatusUnauthorized, "IMPORT_UNAUTHENTICATED"},
		{"project", fmt.Errorf("load: %w", ErrProjectNotFound), http.StatusForbidden, "IMPORT_PROJECT_ACCESS_DENIED"},
		{"mapping", &mapping.ShapeError{Problems: []mapping.Problem{{Path: "field_mappings", Message: "x"}}}, http.StatusBadRequest, "IMPORT_INVALID_MAPPING"},
		{"deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "IMPORT_ABORTED"},
		{"no rows", pgx.ErrNoRows, http.StatusNotFound, "IMPORT_NOT_FOUND"},
		{"task pk", &pgconn.PgError{Code: "23505", ConstraintName: "tasks_pkey"}, http.StatusConflict, "IMPORT_TASK_ID_CONFLICT"},
		{"unique", &pgconn.PgError{Code: "23505"}, http.StatusConflict, "IMPORT_CONFLICT"},
		{"fk", &pgconn.PgError{Code: "23503"}, http.StatusUnprocessableEntity, "IMPORT_REFERENCE_NOT_FOUND"},
		{"date", &pgconn.PgError{Code: "22008"}, http.StatusUnprocessableEntity, "IMPORT_INVALID_DATE"},
		{"other pg", &pgconn.PgError{Code: "XX000"}, http.StatusInternalServerError, "IMPORT_FAILED"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "IMPORT_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var svcErr *ServiceError
			require.ErrorAs(t, classifyError(tc.err), &svcErr)
			require.Equal(t, tc.status, svcErr.Status)
			require.Equal(t, tc.code, svcErr.Code)
		})
	}

	require.NoError(t, classifyError(nil))

	valErr := &ValidationFailedError{}
	require.Same(t, valErr, classifyError(fmt.Errorf("wrapped: %w", valErr)))
}
