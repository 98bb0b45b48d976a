package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// Stripe uses Checkout Sessions as payment preferences. The session id is
// what the webhook hands back, and the order id travels as the session's
// client reference.
type Stripe struct {
	sessions *session.Client
	currency string
	back     BackURLs
}

// NewStripe creates a gateway authenticating with a secret key
func NewStripe(secretKey, currency string, back BackURLs) *Stripe {
	return &Stripe{
		sessions: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		currency: strings.ToLower(currency),
		back:     back,
	}
}

func (s *Stripe) Name() string {
	return ProviderStripe
}

func (s *Stripe) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ExternalReference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(req.UnitPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Title),
				},
			},
			Quantity: stripe.Int64(int64(req.Quantity)),
		}},
		SuccessURL: stripe.String(s.back.Success),
		CancelURL:  stripe.String(s.back.Failure),
	}
	if req.PayerEmail != "" {
		params.CustomerEmail = stripe.String(req.PayerEmail)
	}
	params.Context = ctx

	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &Preference{
		ID:                 cs.ID,
		CheckoutURL:        cs.URL,
		SandboxCheckoutURL: cs.URL,
	}, nil
}

func (s *Stripe) GetPaymentInfo(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := s.sessions.Get(paymentID, params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &PaymentInfo{
		ID:                cs.ID,
		Status:            sessionStatus(cs),
		ExternalReference: cs.ClientReferenceID,
	}, nil
}

// sessionStatus maps a checkout session onto the provider-neutral statuses
// understood by reconciliation
func sessionStatus(cs *stripe.CheckoutSession) string {
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return "approved"
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return "expired"
	default:
		return "pending"
	}
}

func stripeError(err error) *Error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return newError(ProviderStripe, se.HTTPStatusCode, se.Msg, err)
	}
	return newError(ProviderStripe, 0, "", err)
}
