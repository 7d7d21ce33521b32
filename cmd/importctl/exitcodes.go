package main

import (
	"errors"

	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
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
	exitLoad       = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// classify maps a pipeline error to its exit code.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, serrors.ErrValidation):
		return withCode(exitValidation, err)
	case errors.Is(err, services.ErrLoadFailure), errors.Is(err, services.ErrCancelled):
		return withCode(exitLoad, err)
	default:
		return withCode(exitDB, err)
	}
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
