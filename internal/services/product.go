package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/pkg/logkey"
	"go.opentelemetry.io/otel/attribute"
)

// PageSize is the number of products per catalog page
const PageSize = 12

const productColumns = "id, title, slug, description, price_cents, stock, image_url, category_id, active, featured, views, created_at"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

var sortColumns = map[string]string{
	"created":  "created_at ASC, id ASC",
	"-created": "created_at DESC, id DESC",
	"price":    "price_cents ASC, id ASC",
	"-price":   "price_cents DESC, id DESC",
	"pop":      "views DESC, id DESC",
}

// ProductService handles product-related operations
type ProductService struct {
	db      *db.DB
	metrics *metrics.AppMetrics

	maxInstallments int
	minPerCents     int64
	now             func() time.Time
}

// NewProductService creates a new product service. Product views carry
// installment plans bounded by maxInstallments and minPerCents.
func NewProductService(db *db.DB, metrics *metrics.AppMetrics, maxInstallments int, minPerCents int64) *ProductService {
	return &ProductService{
		db:              db,
		metrics:         metrics,
		maxInstallments: maxInstallments,
		minPerCents:     minPerCents,
		now:             time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var (
		p          models.Product
		categoryID sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.PriceCents, &p.Stock,
		&p.ImageURL, &categoryID, &p.Active, &p.Featured, &p.Views, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	return p, nil
}

// View decorates p for customers
func (s *ProductService) View(p models.Product) models.ProductView {
	return models.NewProductView(p, s.maxInstallments, s.minPerCents)
}

// ListProducts returns one page of active products matching f. Pages out of
// range land on the last page.
func (s *ProductService) ListProducts(ctx context.Context, f models.ProductFilter) (*models.ProductPage, error) {
	where := []string{"active = ?"}
	args := []any{true}

	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')")
		like := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		args = append(args, like, like)
	}
	if f.CategorySlug != "" {
		where = append(where, "category_id IN (SELECT id FROM categories WHERE slug = ?)")
		args = append(args, f.CategorySlug)
	}
	if f.FeaturedOnly {
		where = append(where, "featured = ?")
		args = append(args, true)
	}
	if f.MinCents != nil {
		where = append(where, "price_cents >= ?")
		args = append(args, *f.MinCents)
	}
	if f.MaxCents != nil {
		where = append(where, "price_cents <= ?")
		args = append(args, *f.MaxCents)
	}
	whereClause := strings.Join(where, " AND ")

	start := time.Now()
	countQuery := "SELECT COUNT(*) FROM products WHERE " + whereClause
	var total int
	err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	recordQuery(ctx, s.metrics, "SELECT", "products", countQuery, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	totalPages := (total + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	page := f.Page
	if page < 1 || page > totalPages {
		page = totalPages
	}

	order, ok := sortColumns[f.Sort]
	if !ok {
		order = sortColumns["-created"]
	}

	start = time.Now()
	query := fmt.Sprintf("SELECT %s FROM products WHERE %s ORDER BY %s LIMIT ? OFFSET ?", productColumns, whereClause, order)
	rows, err := s.db.QueryContext(ctx, query, append(args, PageSize, (page-1)*PageSize)...)
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.ProductView, 0, PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, s.View(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return &models.ProductPage{
		Products:   products,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

// ViewProduct returns an active product by slug and counts the view
func (s *ProductService) ViewProduct(ctx context.Context, slug string) (*models.ProductView, error) {
	start := time.Now()
	updateQuery := "UPDATE products SET views = views + 1 WHERE slug = ? AND active = ?"
	res, err := s.db.ExecContext(ctx, updateQuery, slug, true)
	recordQuery(ctx, s.metrics, "UPDATE", "products", updateQuery, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to count product view: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrProductNotFound
	}

	start = time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE slug = ? AND active = ?"
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, slug, true))
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	s.metrics.ProductsViewed.Add(ctx, 1, s.metrics.Attrs(
		attribute.Int64("product_id", p.ID),
		attribute.String("product_slug", p.Slug),
	))

	view := s.View(p)
	return &view, nil
}

// GetActiveProduct returns a product that can be sold
func (s *ProductService) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ? AND active = ?"
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id, true))
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetProduct returns a product by ID regardless of its active flag
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListAllProducts returns every product, newest first
func (s *ProductService) ListAllProducts(ctx context.Context) ([]models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products ORDER BY created_at DESC, id DESC"
	rows, err := s.db.QueryContext(ctx, query)
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateProduct stores a new product
func (s *ProductService) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	active := in.Active == nil || *in.Active
	createdAt := s.now().UTC()

	start := time.Now()
	query := `INSERT INTO products (title, slug, description, price_cents, stock, image_url, category_id, active, featured, views, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	res, err := s.db.ExecContext(ctx, query, in.Title, in.Slug, in.Description, in.PriceCents, in.Stock,
		in.ImageURL, nullableID(in.CategoryID), active, in.Featured, createdAt)
	recordQuery(ctx, s.metrics, "INSERT", "products", query, start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get product ID: %w", err)
	}

	slog.Info("product created", slog.Int64(logkey.ProductID, id), slog.String("slug", in.Slug))
	s.recordStock(ctx, id, in.Stock)
	return s.GetProduct(ctx, id)
}

// UpdateProduct replaces the editable fields of a product
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, in models.ProductInput) (*models.Product, error) {
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	active := in.Active == nil || *in.Active

	start := time.Now()
	query := `UPDATE products SET title = ?, slug = ?, description = ?, price_cents = ?, stock = ?,
		image_url = ?, category_id = ?, active = ?, featured = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, in.Title, in.Slug, in.Description, in.PriceCents, in.Stock,
		in.ImageURL, nullableID(in.CategoryID), active, in.Featured, id)
	recordQuery(ctx, s.metrics, "UPDATE", "products", query, start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	// MySQL reports zero affected rows when nothing changed, so confirm by reading
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("product updated", slog.Int64(logkey.ProductID, id))
	}
	s.recordStock(ctx, id, p.Stock)
	return p, nil
}

// DeleteProduct removes a product that no order references
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}

	start := time.Now()
	countQuery := "SELECT COUNT(*) FROM order_items WHERE product_id = ?"
	var refs int
	err := s.db.QueryRowContext(ctx, countQuery, id).Scan(&refs)
	recordQuery(ctx, s.metrics, "SELECT", "order_items", countQuery, start, err)
	if err != nil {
		return fmt.Errorf("failed to count order items: %w", err)
	}
	if refs > 0 {
		return ErrProductInUse
	}

	start = time.Now()
	query := "DELETE FROM products WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, id)
	recordQuery(ctx, s.metrics, "DELETE", "products", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	slog.Info("product deleted", slog.Int64(logkey.ProductID, id))
	return nil
}

func (s *ProductService) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}

	start := time.Now()
	query := "SELECT COUNT(*) FROM categories WHERE id = ?"
	var n int
	err := s.db.QueryRowContext(ctx, query, *id).Scan(&n)
	recordQuery(ctx, s.metrics, "SELECT", "categories", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if n == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (s *ProductService) recordStock(ctx context.Context, productID, stock int64) {
	s.metrics.StockLevel.Record(ctx, stock, s.metrics.Attrs(attribute.Int64("product_id", productID)))
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
