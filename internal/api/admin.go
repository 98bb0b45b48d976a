package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lojinha/storefront/internal/middleware"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/services"
	"github.com/lojinha/storefront/pkg/logkey"
)

// AdminListProductsHandler handles GET /admin/api/products
func (a *App) AdminListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := a.productService.ListAllProducts(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// AdminGetProductHandler handles GET /admin/api/products/{id}
func (a *App) AdminGetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := a.productService.GetProduct(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// AdminCreateProductHandler handles POST /admin/api/products
func (a *App) AdminCreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	if !a.decode(w, r, &in) {
		return
	}

	product, err := a.productService.CreateProduct(r.Context(), in)
	if err != nil {
		a.productInputError(w, r, err)
		return
	}
	a.audit(r, "product created", product.ID)
	writeJSON(w, http.StatusCreated, product)
}

// AdminUpdateProductHandler handles PUT /admin/api/products/{id}
func (a *App) AdminUpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}
	var in models.ProductInput
	if !a.decode(w, r, &in) {
		return
	}

	product, err := a.productService.UpdateProduct(r.Context(), id, in)
	if err != nil {
		a.productInputError(w, r, err)
		return
	}
	a.audit(r, "product updated", id)
	writeJSON(w, http.StatusOK, product)
}

// AdminDeleteProductHandler handles DELETE /admin/api/products/{id}
func (a *App) AdminDeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	if err := a.productService.DeleteProduct(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit(r, "product deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// productInputError reports an unknown category in the request body as a
// client error rather than a missing resource
func (a *App) productInputError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrCategoryNotFound) {
		writeError(w, http.StatusBadRequest, "category_id does not exist")
		return
	}
	a.handleError(w, r, err)
}

// AdminListCategoriesHandler handles GET /admin/api/categories
func (a *App) AdminListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.categoryService.ListCategories(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// AdminGetCategoryHandler handles GET /admin/api/categories/{id}
func (a *App) AdminGetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category ID")
		return
	}

	category, err := a.categoryService.GetCategory(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// AdminCreateCategoryHandler handles POST /admin/api/categories
func (a *App) AdminCreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var in models.CategoryInput
	if !a.decode(w, r, &in) {
		return
	}

	category, err := a.categoryService.CreateCategory(r.Context(), in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit(r, "category created", category.ID)
	writeJSON(w, http.StatusCreated, category)
}

// AdminUpdateCategoryHandler handles PUT /admin/api/categories/{id}
func (a *App) AdminUpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category ID")
		return
	}
	var in models.CategoryInput
	if !a.decode(w, r, &in) {
		return
	}

	category, err := a.categoryService.UpdateCategory(r.Context(), id, in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit(r, "category updated", id)
	writeJSON(w, http.StatusOK, category)
}

// AdminDeleteCategoryHandler handles DELETE /admin/api/categories/{id}
func (a *App) AdminDeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid category ID")
		return
	}

	if err := a.categoryService.DeleteCategory(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit(r, "category deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) audit(r *http.Request, action string, id int64) {
	subject := ""
	if claims, ok := middleware.Admin(r.Context()); ok {
		subject = claims.Subject
	}
	slog.Info(action,
		slog.Int64("id", id),
		slog.String("admin", subject),
		slog.String(logkey.RequestID, middleware.RequestID(r.Context())))
}
