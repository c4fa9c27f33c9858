package orders

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable code attached to every rejected transition.
type Reason string

const (
	ReasonCapacityExceeded    Reason = "capacity-exceeded"
	ReasonItemsIncomplete     Reason = "items-incomplete"
	ReasonItemsUnverified     Reason = "items-unverified"
	ReasonMissingAssignee     Reason = "missing-assignee"
	ReasonMissingShippingInfo Reason = "missing-shipping-info"
	ReasonInvalidTransition   Reason = "invalid-transition"
	ReasonTerminalState       Reason = "terminal-state"
	ReasonInvalidStatus       Reason = "invalid-status"
	ReasonInvalidQuantity     Reason = "invalid-quantity"
	ReasonInvalidInput        Reason = "invalid-input"
	ReasonOverPick            Reason = "over-pick"
	ReasonUnderPick           Reason = "under-pick"
	ReasonSessionActive       Reason = "session-active"
)

type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation failed: " + string(e.Reason)
	}
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Message)
}

func invalid(reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ConflictError means a concurrent operation won the race for the same order.
type ConflictError struct {
	OrderID string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on order %s: %s", e.OrderID, e.Message)
}

type InsufficientInventoryError struct {
	SKU         string
	BinLocation string
	Requested   int
	Available   int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for sku=%s bin=%s: requested %d, available %d",
		e.SKU, e.BinLocation, e.Requested, e.Available)
}

type NotFoundError struct {
	Kind string // order | item | inventory
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InternalError wraps an unexpected infrastructure failure. The transaction
// it happened in has been rolled back.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: internal failure: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsBusinessError reports whether err belongs to the expected taxonomy
// (validation, conflict, insufficient inventory, not found).
func IsBusinessError(err error) bool {
	var (
		ve *ValidationError
		ce *ConflictError
		ie *InsufficientInventoryError
		ne *NotFoundError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ie) || errors.As(err, &ne)
}

// ReasonOf extracts the validation reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
