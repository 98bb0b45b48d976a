package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lojinha/storefront/internal/pricing"
)

// MercadoPago is the Checkout Pro REST gateway
type MercadoPago struct {
	baseURL  string
	token    string
	currency string
	back     BackURLs
	client   *http.Client
}

// NewMercadoPago creates a gateway authenticating with an access token
func NewMercadoPago(baseURL, token, currency string, back BackURLs, timeout time.Duration) *MercadoPago {
	return &MercadoPago{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		currency: currency,
		back:     back,
		client:   &http.Client{Timeout: timeout},
	}
}

func (mp *MercadoPago) Name() string {
	return ProviderMercadoPago
}

type mpItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type mpPreferenceRequest struct {
	Items             []mpItem          `json:"items"`
	Payer             map[string]string `json:"payer,omitempty"`
	ExternalReference string            `json:"external_reference"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
}

type mpPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type mpPaymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
}

func (mp *MercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body := mpPreferenceRequest{
		Items: []mpItem{{
			Title:      req.Title,
			Quantity:   req.Quantity,
			CurrencyID: mp.currency,
			UnitPrice:  pricing.ToUnits(req.UnitPriceCents).InexactFloat64(),
		}},
		ExternalReference: req.ExternalReference,
	}
	if req.PayerEmail != "" {
		body.Payer = map[string]string{"email": req.PayerEmail}
	}
	if mp.back.Success != "" {
		body.BackURLs = map[string]string{
			"success": mp.back.Success,
			"failure": mp.back.Failure,
			"pending": mp.back.Pending,
		}
		body.AutoReturn = "approved"
	}

	var resp mpPreferenceResponse
	if err := mp.do(ctx, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return nil, err
	}

	return &Preference{
		ID:                 resp.ID,
		CheckoutURL:        resp.InitPoint,
		SandboxCheckoutURL: resp.SandboxInitPoint,
	}, nil
}

func (mp *MercadoPago) GetPaymentInfo(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	var resp mpPaymentResponse
	if err := mp.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return nil, err
	}

	id := resp.ID.String()
	if id == "" {
		id = paymentID
	}
	return &PaymentInfo{
		ID:                id,
		Status:            strings.ToLower(resp.Status),
		ExternalReference: resp.ExternalReference,
	}, nil
}

func (mp *MercadoPago) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", ProviderMercadoPago, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, mp.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", ProviderMercadoPago, err)
	}
	req.Header.Set("Authorization", "Bearer "+mp.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := mp.client.Do(req)
	if err != nil {
		return newError(ProviderMercadoPago, 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return newError(ProviderMercadoPago, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(ProviderMercadoPago, resp.StatusCode, string(raw), nil)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return newError(ProviderMercadoPago, resp.StatusCode, string(raw), fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
