// Package shared contains common domain errors used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned from the application layer matches exactly
// one of them with errors.Is().
var (
	// Membership and lookup
	ErrNotMember = errors.New("not an active member of the group")
	ErrNotFound  = errors.New("entity not found")

	// Partnership workflow
	ErrSelfReference        = errors.New("cannot reference self")
	ErrDuplicatePartnership = errors.New("partnership already exists")
	ErrPartnershipNotFound  = errors.New("partnership not found")
	ErrInvalidStatus        = errors.New("invalid status")

	// Validation
	ErrInvalidInput = errors.New("invalid input")

	// External and storage failures
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrPartialFailure      = errors.New("partial failure")
)

// Kind names as exposed to API clients.
const (
	KindNotMember            = "NotMember"
	KindNotFound             = "NotFound"
	KindSelfReference        = "SelfReference"
	KindDuplicatePartnership = "DuplicatePartnership"
	KindPartnershipNotFound  = "PartnershipNotFound"
	KindInvalidStatus        = "InvalidStatus"
	KindInvalidInput         = "InvalidInput"
	KindUpstreamUnavailable  = "UpstreamUnavailable"
	KindPartialFailure       = "PartialFailure"
	KindInternal             = "Internal"
)

// kinds is checked in order; PartialFailure comes before UpstreamUnavailable because
// a partial failure is usually caused by an unavailable store.
var kinds = []struct {
	err  error
	name string
}{
	{ErrPartialFailure, KindPartialFailure},
	{ErrNotMember, KindNotMember},
	{ErrSelfReference, KindSelfReference},
	{ErrDuplicatePartnership, KindDuplicatePartnership},
	{ErrPartnershipNotFound, KindPartnershipNotFound},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidInput, KindInvalidInput},
	{ErrNotFound, KindNotFound},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
}

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "privacy", "stats", "partnership"
	Op      string // Operation that failed, e.g., "Request", "Respond"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Upstream wraps a storage or collaborator failure as UpstreamUnavailable.
// Errors that already carry a kind are returned unchanged.
func Upstream(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return WrapError(domain, op, ErrUpstreamUnavailable, "dependency failed", err)
}

// KindOf returns the API kind name of err, or KindInternal if it carries none.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrPartialFailure)
}
