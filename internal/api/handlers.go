package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/middleware"
	"github.com/lojinha/storefront/internal/services"
	"github.com/lojinha/storefront/pkg/config"
)

// App holds application dependencies
type App struct {
	config          *config.Config
	db              *db.DB
	metrics         *metrics.AppMetrics
	productService  *services.ProductService
	categoryService *services.CategoryService
	cartService     *services.CartService
	orderService    *services.OrderService
	validate        *validator.Validate
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	ps *services.ProductService,
	cats *services.CategoryService,
	cs *services.CartService,
	os *services.OrderService,
) *App {
	return &App{
		config:          cfg,
		db:              database,
		metrics:         m,
		productService:  ps,
		categoryService: cats,
		cartService:     cs,
		orderService:    os,
		validate:        newValidator(),
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{slug}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")

	// Cart and checkout share the anonymous session
	session := middleware.Session(a.config.SessionCookieName, a.config.SessionCookieSecure)
	shop := api.NewRoute().Subrouter()
	shop.Use(session)
	shop.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	shop.HandleFunc("/cart/add", a.AddToCartHandler).Methods("POST")
	shop.HandleFunc("/cart/update", a.UpdateCartHandler).Methods("POST")
	shop.HandleFunc("/cart/clear", a.ClearCartHandler).Methods("POST")
	shop.HandleFunc("/checkout", a.CheckoutHandler).Methods("POST")
	shop.HandleFunc("/checkout/cart", a.CheckoutCartHandler).Methods("POST")

	// Order lookup
	api.HandleFunc("/orders/lookup", a.LookupHandler).Methods("POST")
	api.HandleFunc("/orders/verify-otp", a.VerifyOTPHandler).Methods("POST")
	r.HandleFunc("/orders/{token}", a.OrderStatusHandler).Methods("GET")

	// Payment provider notifications
	r.HandleFunc("/webhooks/payments", a.PaymentWebhookHandler).Methods("POST")

	// Admin
	admin := r.PathPrefix("/admin/api").Subrouter()
	admin.Use(middleware.AdminAuth(a.config.AdminJWTSecret))
	admin.HandleFunc("/products", a.AdminListProductsHandler).Methods("GET")
	admin.HandleFunc("/products", a.AdminCreateProductHandler).Methods("POST")
	admin.HandleFunc("/products/{id}", a.AdminGetProductHandler).Methods("GET")
	admin.HandleFunc("/products/{id}", a.AdminUpdateProductHandler).Methods("PUT")
	admin.HandleFunc("/products/{id}", a.AdminDeleteProductHandler).Methods("DELETE")
	admin.HandleFunc("/categories", a.AdminListCategoriesHandler).Methods("GET")
	admin.HandleFunc("/categories", a.AdminCreateCategoryHandler).Methods("POST")
	admin.HandleFunc("/categories/{id}", a.AdminGetCategoryHandler).Methods("GET")
	admin.HandleFunc("/categories/{id}", a.AdminUpdateCategoryHandler).Methods("PUT")
	admin.HandleFunc("/categories/{id}", a.AdminDeleteCategoryHandler).Methods("DELETE")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
