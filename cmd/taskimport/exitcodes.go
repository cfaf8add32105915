package main

import (
	"errors"
	"net/http"

	"github.com/iota-uz/taskimport/modules/taskimport/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
	exitAccess     = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// serviceError attaches the exit code matching an import service failure.
func serviceError(err error) error {
	var valErr *services.ValidationFailedError
	if errors.As(err, &valErr) {
		return withCode(exitValidation, err)
	}
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return withCode(exitDB, err)
	}
	switch {
	case svcErr.Status == http.StatusUnauthorized, svcErr.Status == http.StatusForbidden:
		return withCode(exitAccess, err)
	case svcErr.Status == http.StatusConflict, svcErr.Status == http.StatusUnprocessableEntity:
		return withCode(exitDBWrite, err)
	case svcErr.Status < http.StatusInternalServerError:
		return withCode(exitUsage, err)
	}
	return withCode(exitDBWrite, err)
}
