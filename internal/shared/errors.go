package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a referenced item, line or MTO is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuantity indicates a negative or zero quantity, or one that would drive stock below zero.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInsufficientStock is matched by every *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflictingState indicates the entity is not in a state that allows the action.
	ErrConflictingState = errors.New("conflicting state")
	// ErrDependencyFailure marks an audit or notification collaborator failure.
	ErrDependencyFailure = errors.New("dependency failure")
)

// InsufficientStockError carries the figures shown to the client when a
// reservation cannot be satisfied from on-hand stock.
type InsufficientStockError struct {
	ItemID    int64
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortage  decimal.Decimal
}

// NewInsufficientStock builds the error and derives the shortage.
func NewInsufficientStock(itemID int64, available, requested decimal.Decimal) *InsufficientStockError {
	return &InsufficientStockError{
		ItemID:    itemID,
		Available: available,
		Requested: requested,
		Shortage:  requested.Sub(available),
	}
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %s, requested %s, shortage %s",
		e.ItemID, e.Available.String(), e.Requested.String(), e.Shortage.String())
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidQuantityf wraps ErrInvalidQuantity with context.
func InvalidQuantityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, fmt.Sprintf(format, args...))
}

// ConflictingStatef wraps ErrConflictingState with context.
func ConflictingStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflictingState, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message that can be shown to API clients without
// leaking storage details.
func UserSafeMessage(err error) string {
	var stockErr *InsufficientStockError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &stockErr):
		return stockErr.Error()
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrConflictingState):
		return err.Error()
	default:
		return "internal error"
	}
}
