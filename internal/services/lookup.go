package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lojinha/storefront/internal/mailer"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/tokens"
	"github.com/lojinha/storefront/pkg/logkey"
	"go.opentelemetry.io/otel/attribute"
)

// findForLookup returns the newest order placed with email, restricted to
// shortCode when it is not empty. Both match case-insensitively.
func (s *OrderService) findForLookup(ctx context.Context, email, shortCode string) (*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE LOWER(customer_email) = LOWER(?)"
	args := []any{email}
	if shortCode != "" {
		query += " AND LOWER(short_code) = LOWER(?)"
		args = append(args, shortCode)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"

	start := time.Now()
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, args...))
	recordQuery(ctx, s.metrics, "SELECT", "orders", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		if shortCode == "" {
			return nil, ErrNoOrdersForEmail
		}
		return nil, ErrLookupNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return order, nil
}

// RequestLookupCode issues a fresh one-time code for an order and emails it
// to the customer. Any code issued before stops working.
func (s *OrderService) RequestLookupCode(ctx context.Context, email, shortCode string) error {
	email = strings.TrimSpace(email)
	shortCode = strings.TrimSpace(shortCode)
	if email == "" {
		return ErrEmailRequired
	}

	order, err := s.findForLookup(ctx, email, shortCode)
	if err != nil {
		return err
	}

	code, err := s.tokens.OTP(tokens.DefaultOTPLength)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	expires := s.tokens.OTPExpiry(s.opts.OTPTTL).UTC()

	start := time.Now()
	query := "UPDATE orders SET otp_code = ?, otp_expires_at = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, code, expires, order.ID)
	recordQuery(ctx, s.metrics, "UPDATE", "orders", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to store lookup code: %w", err)
	}

	s.metrics.OTPRequests.Add(ctx, 1, s.metrics.Attrs(attribute.String("stage", "issued")))
	slog.Info("lookup code issued", slog.Int64(logkey.OrderID, order.ID))

	msg := mailer.LookupCode(email, code, int(s.opts.OTPTTL/time.Minute))
	if err := s.mail.Send(ctx, msg); err != nil {
		slog.Warn("failed to send lookup code email",
			slog.Int64(logkey.OrderID, order.ID),
			slog.String(logkey.Error, err.Error()))
	}
	return nil
}

// VerifyLookupCode checks a code against the order identified by email and
// short code and returns the order's status URL. The code stays valid until
// it expires or a new one is requested.
func (s *OrderService) VerifyLookupCode(ctx context.Context, email, shortCode, code string) (string, error) {
	email = strings.TrimSpace(email)
	shortCode = strings.TrimSpace(shortCode)
	code = strings.TrimSpace(code)
	if email == "" || shortCode == "" || code == "" {
		return "", ErrLookupFieldsMissing
	}

	order, err := s.findForLookup(ctx, email, shortCode)
	if err != nil {
		return "", err
	}

	outcome := "verified"
	defer func() {
		s.metrics.OTPRequests.Add(ctx, 1, s.metrics.Attrs(attribute.String("stage", outcome)))
	}()

	if order.OTPCode == "" || order.OTPExpiresAt == nil {
		outcome = "not_requested"
		return "", ErrOTPNotRequested
	}
	if s.now().After(*order.OTPExpiresAt) {
		outcome = "expired"
		return "", ErrOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(order.OTPCode)) != 1 {
		outcome = "mismatch"
		return "", ErrOTPMismatch
	}

	return s.opts.OrderURL(order.PublicToken), nil
}
