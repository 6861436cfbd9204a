package store

import "fmt"

// NotFoundError is returned when a host or container policy does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func NewNotFoundError(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// ConflictError is returned when a write collides with existing data or with a
// concurrent writer.
type ConflictError struct {
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Key, e.Reason)
}

func NewConflictError(key, reason string) *ConflictError {
	return &ConflictError{Key: key, Reason: reason}
}
