// ABOUTME: Error taxonomy for conversation operations
// ABOUTME: Validation, not-found and persistence failures map to 400, 404 and 500

package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2389/mentor-gateway/internal/store"
)

// ErrNotFound is returned when a conversation is absent or owned by another caller.
var ErrNotFound = store.ErrNotFound

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// err returns e when any field failed, nil otherwise.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PersistenceError wraps a store failure for an otherwise valid request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// storeErr passes ownership failures through unchanged and wraps everything
// else as a PersistenceError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
