package simulation

import (
	"errors"
	"strings"
)

var (
	ErrValidation  = errors.New("invalid simulation input")
	ErrSKUNotFound = errors.New("sku not found")
)

// ValidationError lists every missing or malformed input field.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid simulation input: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
