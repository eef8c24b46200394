package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateItem     = errors.New("duplicate item")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failed")
)

// ValidationError names the offending field so callers can point at it.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DuplicateItemError is returned when one receipt lists the same canonical
// item twice. The existing line has to be edited instead.
type DuplicateItemError struct {
	Name string
	Key  string
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("item %q already on this receipt (key %q)", e.Name, e.Key)
}

func (e *DuplicateItemError) Is(target error) bool {
	return target == ErrDuplicateItem
}

type Shortfall struct {
	Name      string `json:"name"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s (Available: %d, Requested: %d)", s.Name, s.Available, s.Requested)
}

// InsufficientStockError carries every short line of a rejected sale.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, s.String())
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PersistenceError wraps a failure from the persistence collaborator.
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

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
