package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/lojinha/storefront/internal/middleware"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/services"
	"github.com/lojinha/storefront/pkg/logkey"
	"go.opentelemetry.io/otel/attribute"
)

// CheckoutHandler handles POST /api/v1/checkout
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.orderService.CheckoutProduct(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CheckoutCartHandler handles POST /api/v1/checkout/cart
func (a *App) CheckoutCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CartCheckoutRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.orderService.CheckoutCart(r.Context(), middleware.SessionID(r.Context()), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// webhookPayload covers MercadoPago ({"data":{"id":...}}) and Stripe
// ({"data":{"object":{"id":...}}}) notifications
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID     json.RawMessage `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// reconcilable reports whether the notification can carry a payment. Stripe
// sends every account event to the endpoint and only checkout sessions map to
// orders; MercadoPago uses "payment" for payment notifications. Untyped bodies
// are accepted.
func (p webhookPayload) reconcilable() bool {
	switch {
	case p.Type == "", p.Type == "payment":
		return true
	case strings.HasPrefix(p.Type, "checkout.session."):
		return true
	default:
		return false
	}
}

func (p webhookPayload) paymentID() string {
	if id := rawID(p.Data.ID); id != "" {
		return id
	}
	return strings.TrimSpace(p.Data.Object.ID)
}

// rawID accepts ids sent either as JSON strings or numbers
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// PaymentWebhookHandler handles POST /webhooks/payments
func (a *App) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		a.countWebhook(r, "invalid")
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	paymentID := payload.paymentID()
	if paymentID == "" || !payload.reconcilable() {
		a.countWebhook(r, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := a.orderService.ReconcilePayment(ctx, paymentID)
	if errors.Is(err, services.ErrOrderNotResolved) {
		slog.Warn("webhook for unknown order",
			slog.String(logkey.PaymentID, paymentID),
			slog.String(logkey.Error, err.Error()),
			slog.String(logkey.RequestID, middleware.RequestID(ctx)))
		a.countWebhook(r, "unresolved")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		a.countWebhook(r, "failed")
		a.handleError(w, r, err)
		return
	}

	outcome := "noop"
	if result.Applied {
		outcome = string(result.OrderStatus)
	}
	a.countWebhook(r, outcome)
	w.WriteHeader(http.StatusOK)
}

func (a *App) countWebhook(r *http.Request, outcome string) {
	a.metrics.WebhookEvents.Add(r.Context(), 1, a.metrics.Attrs(
		attribute.String("provider", a.config.PaymentProvider),
		attribute.String("outcome", outcome),
	))
}

// OrderStatusHandler handles GET /orders/{token}
func (a *App) OrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := a.orderService.GetOrderStatus(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// LookupHandler handles POST /api/v1/orders/lookup
func (a *App) LookupHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.orderService.RequestLookupCode(r.Context(), req.Email, req.ShortCode); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "We sent a code to your email."})
}

// VerifyOTPHandler handles POST /api/v1/orders/verify-otp
func (a *App) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyOTPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	url, err := a.orderService.VerifyLookupCode(r.Context(), req.Email, req.ShortCode, req.OTP)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_url": url})
}
