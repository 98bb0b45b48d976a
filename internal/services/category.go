package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

const categoryCacheTTL = 5 * time.Minute

// categoryCache holds the category list shown next to every catalog page
type categoryCache struct {
	mu      sync.RWMutex
	items   []models.Category
	expires time.Time
}

func (c *categoryCache) get(now time.Time) ([]models.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.items == nil || !now.Before(c.expires) {
		return nil, false
	}
	out := make([]models.Category, len(c.items))
	copy(out, c.items)
	return out, true
}

func (c *categoryCache) set(items []models.Category, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.expires = expires
}

func (c *categoryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// CategoryService handles category-related operations
type CategoryService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   categoryCache
	now     func() time.Time
}

// NewCategoryService creates a new category service
func NewCategoryService(db *db.DB, metrics *metrics.AppMetrics) *CategoryService {
	return &CategoryService{
		db:      db,
		metrics: metrics,
		now:     time.Now,
	}
}

// ListCategories returns all categories ordered by name
func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	if cached, ok := s.cache.get(s.now()); ok {
		s.metrics.CacheHits.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache", "categories")))
		return cached, nil
	}
	s.metrics.CacheMisses.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache", "categories")))

	start := time.Now()
	query := "SELECT id, name, slug, featured FROM categories ORDER BY name ASC, id ASC"
	rows, err := s.db.QueryContext(ctx, query)
	recordQuery(ctx, s.metrics, "SELECT", "categories", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Featured); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	s.cache.set(categories, s.now().Add(categoryCacheTTL))
	out := make([]models.Category, len(categories))
	copy(out, categories)
	return out, nil
}

// GetCategory returns a category by ID
func (s *CategoryService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	start := time.Now()
	query := "SELECT id, name, slug, featured FROM categories WHERE id = ?"
	var c models.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Featured)
	recordQuery(ctx, s.metrics, "SELECT", "categories", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// CreateCategory stores a new category
func (s *CategoryService) CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error) {
	start := time.Now()
	query := "INSERT INTO categories (name, slug, featured) VALUES (?, ?, ?)"
	res, err := s.db.ExecContext(ctx, query, in.Name, in.Slug, in.Featured)
	recordQuery(ctx, s.metrics, "INSERT", "categories", query, start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	s.cache.invalidate()

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Info("category created", slog.Int64("category_id", id), slog.String("slug", in.Slug))
	return &models.Category{ID: id, Name: in.Name, Slug: in.Slug, Featured: in.Featured}, nil
}

// UpdateCategory replaces a category's fields
func (s *CategoryService) UpdateCategory(ctx context.Context, id int64, in models.CategoryInput) (*models.Category, error) {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return nil, err
	}

	start := time.Now()
	query := "UPDATE categories SET name = ?, slug = ?, featured = ? WHERE id = ?"
	_, err := s.db.ExecContext(ctx, query, in.Name, in.Slug, in.Featured, id)
	recordQuery(ctx, s.metrics, "UPDATE", "categories", query, start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	s.cache.invalidate()

	return &models.Category{ID: id, Name: in.Name, Slug: in.Slug, Featured: in.Featured}, nil
}

// DeleteCategory removes a category. Its products stay, uncategorised.
func (s *CategoryService) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		detach := "UPDATE products SET category_id = NULL WHERE category_id = ?"
		_, err := tx.ExecContext(ctx, detach, id)
		recordQuery(ctx, s.metrics, "UPDATE", "products", detach, start, err)
		if err != nil {
			return fmt.Errorf("failed to detach products: %w", err)
		}

		start = time.Now()
		query := "DELETE FROM categories WHERE id = ?"
		_, err = tx.ExecContext(ctx, query, id)
		recordQuery(ctx, s.metrics, "DELETE", "categories", query, start, err)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.invalidate()

	slog.Info("category deleted", slog.Int64("category_id", id))
	return nil
}
