package models

import (
	"errors"
	"fmt"
)

var (
	ErrTransport       = errors.New("transport failure")
	ErrMalformedInput  = errors.New("malformed input")
	ErrNoData          = errors.New("no input data")
	ErrSchemaViolation = errors.New("schema violation")
	ErrStore           = errors.New("store failure")
	ErrQuery           = errors.New("query failure")
)

// TransportError records why a paginated fetch stopped early
type TransportError struct {
	Cursor     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %q failed with status %d: %v", e.Cursor, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("page %q failed: %v", e.Cursor, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
