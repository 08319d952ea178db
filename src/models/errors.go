package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrNotLinked            = errors.New("card is not linked to an external account")
	ErrConflict             = errors.New("conflict")
	ErrUpstreamUnavailable  = errors.New("aggregator unavailable")
	ErrInvalidSessionResult = errors.New("invalid or already consumed session result")
)

// ValidationError reports a rejected input field. It matches ErrValidation.
func ValidationError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// NotFound reports a missing entity. It matches ErrNotFound.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
