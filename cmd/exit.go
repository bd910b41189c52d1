package main

import (
	"errors"

	"github.com/wesm/argh/internal/models"
)

// Process exit codes
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitNoData         = 2
	ExitMalformedInput = 3
	ExitStoreFailure   = 4
)

// ExitCode maps an error returned by a command to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, models.ErrMalformedInput):
		return ExitMalformedInput
	case errors.Is(err, models.ErrSchemaViolation),
		errors.Is(err, models.ErrStore),
		errors.Is(err, models.ErrQuery):
		return ExitStoreFailure
	case errors.Is(err, models.ErrNoData):
		return ExitNoData
	default:
		return ExitFailure
	}
}
