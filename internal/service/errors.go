package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound       = errors.New("inventory item not found")
	ErrAdjustmentNotFound = errors.New("stock adjustment not found")

	// ErrAlreadyRolledBack is returned for a second rollback of one adjustment.
	ErrAlreadyRolledBack = &ValidationError{Field: "adjustment_id", Reason: "has already been rolled back"}
)

// ValidationError reports a structural problem with the input. Err holds the
// underlying cause, if any.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InsufficientStockError is returned when an adjustment would drive stock
// below zero.
type InsufficientStockError struct {
	ItemID    string
	Available decimal.Decimal
	Requested decimal.Decimal
	Unit      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available=%s %s, requested=%s %s",
		e.ItemID, e.Available, e.Unit, e.Requested, e.Unit)
}

// ConcurrentModificationError is returned when the conditional update kept
// losing to concurrent writers.
type ConcurrentModificationError struct {
	ItemID   string
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("item %s modified concurrently, gave up after %d attempts", e.ItemID, e.Attempts)
}

// ConsistencyError is returned when the ledger replay does not reproduce the
// stored stock.
type ConsistencyError struct {
	ItemID   string
	Stored   decimal.Decimal
	Replayed decimal.Decimal
	Detail   string
}

func (e *ConsistencyError) Error() string {
	msg := fmt.Sprintf("ledger of item %s replays to %s but stock is %s", e.ItemID, e.Replayed, e.Stored)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CompensationError is returned when an order line failed and some of the
// lines already applied could not be rolled back. Pending lists the ids of
// the adjustments still in effect.
type CompensationError struct {
	OrderID string
	Cause   error
	Pending []string
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("order %s failed (%v) and %d applied lines could not be rolled back",
		e.OrderID, e.Cause, len(e.Pending))
}

func (e *CompensationError) Unwrap() error {
	return e.Cause
}
