package api

import (
	"net/http"

	"github.com/lojinha/storefront/internal/middleware"
	"github.com/lojinha/storefront/internal/models"
)

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := a.cartService.GetCart(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddToCartHandler handles POST /api/v1/cart/add
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CartItemRequest
	if !a.decode(w, r, &req) {
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}

	if err := a.cartService.Add(r.Context(), middleware.SessionID(r.Context()), req.ProductID, qty); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "ok"})
}

// UpdateCartHandler handles POST /api/v1/cart/update
func (a *App) UpdateCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CartItemRequest
	if !a.decode(w, r, &req) {
		return
	}
	qty := 0
	if req.Qty != nil {
		qty = *req.Qty
	}

	if err := a.cartService.SetQuantity(r.Context(), middleware.SessionID(r.Context()), req.ProductID, qty); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "ok"})
}

// ClearCartHandler handles POST /api/v1/cart/clear
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.cartService.Clear(r.Context(), middleware.SessionID(r.Context())); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "ok"})
}
