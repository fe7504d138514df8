package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("scheduling conflict")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// NotFoundError is returned when a referenced request, rider or assignment does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError carries the entity and field that failed so callers can point at the bad input
type ValidationError struct {
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	b.WriteString(e.Entity)
	if e.ID != "" {
		b.WriteString(" ")
		b.WriteString(e.ID)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError is raised only when the conflict policy hard-blocks failing candidates
type ConflictError struct {
	RequestID string
	RiderID   string
	Reasons   []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rider %s cannot be assigned to %s: %s", e.RiderID, e.RequestID, strings.Join(e.Reasons, "; "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ConcurrencyError is surfaced after the bounded retry loop gives up
type ConcurrencyError struct {
	RequestID string
	Attempts  int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("request %s was modified concurrently (gave up after %d attempts)", e.RequestID, e.Attempts)
}

func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrentModification
}

// IsRetryable returns true if the operation might succeed with fresh state
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is caused by the caller's input
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}
