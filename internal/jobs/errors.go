package jobs

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrValidation   = errors.New("invalid job parameters")
	ErrInvalidState = errors.New("job is not in a valid state for this operation")
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// InvalidStateError carries the job's actual status when an operation is refused.
type InvalidStateError struct {
	Status string
}

func (e *InvalidStateError) Error() string {
	return "current status is " + e.Status
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ValidationError lists the submission fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid job parameters: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
