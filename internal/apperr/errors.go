// Package apperr holds the error taxonomy shared by the organization
// lifecycle core and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrSessionOpen  = errors.New("an edit session is already open for this organization")
	ErrNoSession    = errors.New("no edit session is open")
	ErrNoDecision   = errors.New("no cancel decision is pending")
	ErrFlowBusy     = errors.New("another flow is in progress for this organization")
	ErrInvalidInput = errors.New("invalid input")
)

// GenericPersistenceMessage is surfaced when the directory gives no message.
const GenericPersistenceMessage = "Something went wrong while saving. Please try again."

// ValidationError is a local, pre-flight format failure on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError is a pre-flight failure against current membership state,
// such as a duplicate email.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvariantViolation signals a request the UI should never have been able to
// make (revoking the owner, re-activating an active organization).
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Reason)
}

// PersistenceError wraps any failure reported by the directory service.
type PersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence builds a PersistenceError. When msg is empty the generic
// fallback message is used.
func Persistence(op, msg string, err error) *PersistenceError {
	if strings.TrimSpace(msg) == "" {
		msg = GenericPersistenceMessage
	}
	return &PersistenceError{Op: op, Message: msg, Err: err}
}

// FieldErrors maps a field name to its human readable error. A non-empty map
// blocks submission.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records err under its field when err is a ValidationError or
// ConflictError. Other errors are recorded under "_".
func (fe FieldErrors) Add(err error) {
	if err == nil {
		return
	}
	var ve *ValidationError
	var ce *ConflictError
	switch {
	case errors.As(err, &ve):
		fe[ve.Field] = ve.Message
	case errors.As(err, &ce):
		fe[ce.Field] = ce.Message
	default:
		fe["_"] = err.Error()
	}
}

// OrNil returns nil for an empty map so callers can `return fe.OrNil()`.
func (fe FieldErrors) OrNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// Clone copies the map.
func (fe FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(fe))
	for k, v := range fe {
		out[k] = v
	}
	return out
}

func IsValidation(err error) bool {
	var ve *ValidationError
	var fe FieldErrors
	return errors.As(err, &ve) || errors.As(err, &fe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsInvariant(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
