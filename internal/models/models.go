package models

import (
	"time"

	"github.com/lojinha/storefront/internal/pricing"
)

// OrderStatus is the payment state of an order
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
)

// Category groups products in the catalog
type Category struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Slug     string `json:"slug" db:"slug"`
	Featured bool   `json:"featured" db:"featured"`
}

// Product represents a product in the catalog
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Stock       int64     `json:"stock" db:"stock"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	CategoryID  *int64    `json:"category_id" db:"category_id"`
	Active      bool      `json:"active" db:"active"`
	Featured    bool      `json:"featured" db:"featured"`
	Views       int64     `json:"views" db:"views"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID                int64       `json:"id" db:"id"`
	PublicToken       string      `json:"public_token" db:"public_token"`
	ShortCode         string      `json:"short_code" db:"short_code"`
	CustomerEmail     string      `json:"customer_email" db:"customer_email"`
	CustomerPhone     string      `json:"customer_phone" db:"customer_phone"`
	Status            OrderStatus `json:"status" db:"status"`
	TotalCents        int64       `json:"total_cents" db:"total_cents"`
	PaymentProvider   string      `json:"payment_provider" db:"payment_provider"`
	PaymentProviderID string      `json:"payment_provider_id" db:"payment_provider_id"`
	OTPCode           string      `json:"-" db:"otp_code"`
	OTPExpiresAt      *time.Time  `json:"-" db:"otp_expires_at"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// OrderItem represents a line of an order with the price captured at checkout
type OrderItem struct {
	ID             int64  `json:"id" db:"id"`
	OrderID        int64  `json:"order_id" db:"order_id"`
	ProductID      int64  `json:"product_id" db:"product_id"`
	ProductTitle   string `json:"product_title"`
	Qty            int    `json:"qty" db:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents" db:"unit_price_cents"`
}

// ProductView is a product as shown to customers
type ProductView struct {
	Product
	PriceDisplay    string         `json:"price_display"`
	Installments    []pricing.Plan `json:"installments"`
	BestInstallment pricing.Plan   `json:"best_installment"`
}

// NewProductView decorates p with its formatted price and installment plans
func NewProductView(p Product, maxInstallments int, minPerCents int64) ProductView {
	plans := pricing.Plans(p.PriceCents, maxInstallments, minPerCents)
	return ProductView{
		Product:         p,
		PriceDisplay:    pricing.Money(p.PriceCents),
		Installments:    plans,
		BestInstallment: pricing.Best(plans),
	}
}

// ProductFilter selects products for the catalog listing
type ProductFilter struct {
	Query        string
	CategorySlug string
	FeaturedOnly bool
	MinCents     *int64
	MaxCents     *int64
	Sort         string
	Page         int
}

// ProductPage is one page of the catalog listing
type ProductPage struct {
	Products   []ProductView `json:"products"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Total      int           `json:"total"`
	Categories []Category    `json:"categories"`
}

// CartLine is a cart entry resolved against the catalog
type CartLine struct {
	Product       Product `json:"product"`
	Qty           int     `json:"qty"`
	SubtotalCents int64   `json:"subtotal_cents"`
}

// CartResponse represents a cart with its items
type CartResponse struct {
	Items        []CartLine `json:"items"`
	TotalCents   int64      `json:"total_cents"`
	TotalDisplay string     `json:"total_display"`
}

// OrderStatusResponse is the customer facing order page
type OrderStatusResponse struct {
	Order        Order       `json:"order"`
	Items        []OrderItem `json:"items"`
	ItemsCount   int         `json:"items_count"`
	TotalDisplay string      `json:"total_display"`
}

// MaxLineQty is the largest quantity of one product a cart line or checkout accepts
const MaxLineQty = 999

// CheckoutRequest represents a single product checkout
type CheckoutRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       int    `json:"qty" validate:"omitempty,min=1,max=999"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	Phone     string `json:"phone" validate:"max=30"`
}

// CartCheckoutRequest represents a checkout of the session cart
type CartCheckoutRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"max=30"`
}

// CheckoutResponse is returned once the payment preference exists
type CheckoutResponse struct {
	OrderID   int64  `json:"order_id"`
	PublicURL string `json:"public_url"`
	ShortCode string `json:"short_code"`
	InitPoint string `json:"init_point"`
}

// CartItemRequest adds or updates a cart line. A missing qty means 1 for add
// and 0 (remove) for update.
type CartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       *int  `json:"qty" validate:"omitempty,max=999"`
}

// LookupRequest starts an order lookup by email
type LookupRequest struct {
	Email     string `json:"email" validate:"required,max=254"`
	ShortCode string `json:"short_code" validate:"max=10"`
}

// VerifyOTPRequest completes an order lookup
type VerifyOTPRequest struct {
	Email     string `json:"email" validate:"required,max=254"`
	ShortCode string `json:"short_code" validate:"required,max=10"`
	OTP       string `json:"otp" validate:"required,numeric,max=10"`
}

// ProductInput creates or replaces a product from the admin API
type ProductInput struct {
	Title       string `json:"title" validate:"required,max=180"`
	Slug        string `json:"slug" validate:"required,slug,max=180"`
	CategoryID  *int64 `json:"category_id" validate:"omitempty,gt=0"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	ImageURL    string `json:"image_url" validate:"omitempty,url,max=500"`
	Stock       int64  `json:"stock" validate:"gte=0"`
	Active      *bool  `json:"active"`
	Featured    bool   `json:"featured"`
}

// CategoryInput creates or replaces a category from the admin API
type CategoryInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Slug     string `json:"slug" validate:"required,slug,max=140"`
	Featured bool   `json:"featured"`
}

// MessageResponse carries a short human readable message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}
