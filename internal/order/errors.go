package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOrders signals an empty (but successful) listing.
	ErrNoOrders = errors.New("no orders found")
	// ErrNoSalesData signals zero completed orders in the sales report.
	ErrNoSalesData = errors.New("no sales data found")
)

// ValidationError covers malformed requests: missing fields, invalid enum
// values, broken price invariants. Always raised before any storage mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource (user, product or order).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InsufficientStockError is the business rejection raised inside the atomic
// unit of work when a line item asks for more than is available.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d",
		e.ProductID, e.Name, e.Requested, e.Available)
}

// TransactionError means the atomic commit could not be completed within the
// bounded retry budget. Retryable from the caller's point of view.
type TransactionError struct {
	Attempts int
	Err      error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("order transaction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
