package payments

import (
	"context"
	"net/url"
	"strings"
)

const mockPrefPrefix = "mock_pref_"

// Mock is an offline gateway with deterministic checkout URLs. Every payment
// it is asked about is approved.
type Mock struct{}

// NewMock creates the offline gateway
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string {
	return ProviderMock
}

func (m *Mock) CreatePreference(_ context.Context, req PreferenceRequest) (*Preference, error) {
	ref := url.QueryEscape(req.ExternalReference)
	return &Preference{
		ID:                 mockPrefPrefix + req.ExternalReference,
		CheckoutURL:        "https://example.com/mock-checkout?ref=" + ref,
		SandboxCheckoutURL: "https://example.com/mock-checkout?ref=" + ref + "&env=sandbox",
	}, nil
}

// GetPaymentInfo reports paymentID as approved. The external reference is
// the payment id without the mock preference prefix.
func (m *Mock) GetPaymentInfo(_ context.Context, paymentID string) (*PaymentInfo, error) {
	return &PaymentInfo{
		ID:                paymentID,
		Status:            "approved",
		ExternalReference: strings.TrimPrefix(paymentID, mockPrefPrefix),
	}, nil
}
