// Package payments talks to the checkout provider: it creates payment
// preferences and reads back payment status for webhook reconciliation.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lojinha/storefront/pkg/config"
)

const (
	ProviderMock        = "mock"
	ProviderMercadoPago = "mercadopago"
	ProviderStripe      = "stripe"

	maxErrorBody = 400
)

// PreferenceRequest describes what the customer is about to pay for
type PreferenceRequest struct {
	Title             string
	Quantity          int
	UnitPriceCents    int64
	ExternalReference string
	PayerEmail        string
}

// Preference is a provider checkout ready to receive the customer
type Preference struct {
	ID                 string
	CheckoutURL        string
	SandboxCheckoutURL string
}

// PaymentInfo is the provider's view of a payment
type PaymentInfo struct {
	ID                string
	Status            string
	ExternalReference string
}

// Gateway is a payment provider
type Gateway interface {
	Name() string
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPaymentInfo(ctx context.Context, paymentID string) (*PaymentInfo, error)
}

// Error reports a failed call to the provider
type Error struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(provider string, status int, body string, err error) *Error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &Error{Provider: provider, StatusCode: status, Body: body, Err: err}
}

// Approved reports whether a provider status means the payment went through
func Approved(status string) bool {
	switch strings.ToLower(status) {
	case "approved", "accredited":
		return true
	}
	return false
}

// Failed reports whether a provider status means the payment will never complete
func Failed(status string) bool {
	switch strings.ToLower(status) {
	case "cancelled", "rejected", "expired":
		return true
	}
	return false
}

// BackURLs are where the provider sends the customer after checkout
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// New selects the gateway named by cfg. The mock gateway is used when mock
// mode is on or the selected provider has no credential.
func New(cfg *config.Config) Gateway {
	back := BackURLs{
		Success: cfg.CheckoutSuccessURL,
		Failure: cfg.CheckoutFailureURL,
		Pending: cfg.CheckoutPendingURL,
	}
	timeout := cfg.PaymentTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	if cfg.PaymentsMock {
		return NewMock()
	}

	switch cfg.PaymentProvider {
	case ProviderStripe:
		if cfg.StripeSecretKey == "" {
			slog.Warn("stripe selected without a secret key, using mock payments")
			return NewMock()
		}
		return NewStripe(cfg.StripeSecretKey, cfg.Currency, back)
	case ProviderMercadoPago:
		if cfg.MercadoPagoAccessToken == "" {
			slog.Warn("mercadopago selected without an access token, using mock payments")
			return NewMock()
		}
		return NewMercadoPago(cfg.MercadoPagoBaseURL, cfg.MercadoPagoAccessToken, cfg.Currency, back, timeout)
	default:
		slog.Warn("unknown payment provider, using mock payments", slog.String("provider", cfg.PaymentProvider))
		return NewMock()
	}
}
