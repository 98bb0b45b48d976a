package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/pricing"
)

// ListProductsHandler handles GET /api/v1/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		Query:        q.Get("q"),
		CategorySlug: q.Get("cat"),
		FeaturedOnly: q.Get("featured") == "1" || q.Get("featured") == "true",
		Sort:         q.Get("sort"),
		Page:         1,
	}
	if cents, ok := pricing.ParseCents(q.Get("min_price")); ok {
		filter.MinCents = &cents
	}
	if cents, ok := pricing.ParseCents(q.Get("max_price")); ok {
		filter.MaxCents = &cents
	}
	if p := q.Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			filter.Page = parsed
		}
	}

	page, err := a.productService.ListProducts(r.Context(), filter)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	categories, err := a.categoryService.ListCategories(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	page.Categories = categories

	writeJSON(w, http.StatusOK, page)
}

// GetProductHandler handles GET /api/v1/products/{slug}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := a.productService.ViewProduct(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ListCategoriesHandler handles GET /api/v1/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.categoryService.ListCategories(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}
