package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lojinha/storefront/internal/metrics"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateSlug    = errors.New("slug already in use")
	ErrProductInUse     = errors.New("product has orders and cannot be deleted")
	ErrInvalidQuantity  = errors.New("qty must be between 1 and 999")
	ErrTotalTooLarge    = errors.New("order total is too large")
	ErrEmptyCart        = errors.New("cart is empty")

	// webhook
	ErrOrderNotResolved = errors.New("payment does not reference a known order")

	// order lookup
	ErrEmailRequired       = errors.New("email is required")
	ErrLookupFieldsMissing = errors.New("email, short_code and otp are required")
	ErrLookupNoMatch       = errors.New("order not found")
	ErrNoOrdersForEmail    = errors.New("no orders found for this email")
	ErrOTPNotRequested     = errors.New("request a new code")
	ErrOTPExpired          = errors.New("code expired")
	ErrOTPMismatch         = errors.New("incorrect code")
)

// InsufficientStockError rejects a checkout asking for more units than are in stock
type InsufficientStockError struct {
	ProductID int64
	Title     string
	Requested int
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d", e.Title, e.Requested, e.Available)
}

// isUniqueViolation recognises duplicate key errors from MySQL and SQLite
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// recordQuery reports a finished query. A missing row is not a failure.
func recordQuery(ctx context.Context, m *metrics.AppMetrics, operation, table, query string, start time.Time, err error) {
	m.RecordDBQuery(ctx, operation, table, query, start, err == nil || errors.Is(err, sql.ErrNoRows))
}
