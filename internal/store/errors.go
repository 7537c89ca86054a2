// Package store implements an in-memory, capacity-bounded message store
// holding individually addressable messages and named groups of them.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrCapacityExhausted indicates a capacity gate could not be acquired
	// within the configured timeout. Callers may retry with backoff.
	// The concrete error is a *CapacityError carrying the scope and limits.
	ErrCapacityExhausted = errors.New("store: capacity exhausted")

	// ErrGroupNotFound indicates an operation targeted a group that does
	// not exist. Consumer-side operations never create groups.
	ErrGroupNotFound = errors.New("store: group not found")

	// ErrInterrupted indicates a blocking wait was cancelled through the
	// caller's context. The context error stays in the chain.
	ErrInterrupted = errors.New("store: interrupted")
)

// Scope names which capacity gate was exhausted.
type Scope string

const (
	// ScopeIndividual is the flat, per-message capacity.
	ScopeIndividual Scope = "individual"
	// ScopeGroup is the capacity of one named group.
	ScopeGroup Scope = "group"
)

// CapacityError describes a capacity exhaustion.
type CapacityError struct {
	Scope   Scope
	GroupID any // nil for ScopeIndividual
	Limit   int
	Timeout time.Duration
}

func (e *CapacityError) Error() string {
	if e.Scope == ScopeGroup {
		return fmt.Sprintf("store: capacity exhausted for group %v (limit %d, waited %s)", e.GroupID, e.Limit, e.Timeout)
	}
	return fmt.Sprintf("store: individual capacity exhausted (limit %d, waited %s)", e.Limit, e.Timeout)
}

// Unwrap makes errors.Is(err, ErrCapacityExhausted) hold.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExhausted
}

func groupNotFound(groupID any) error {
	return fmt.Errorf("%w: %v", ErrGroupNotFound, groupID)
}

func interrupted(err error) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}
