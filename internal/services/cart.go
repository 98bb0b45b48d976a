package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lojinha/storefront/internal/cart"
	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/pricing"
)

// CartService keeps one cart per browser session
type CartService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	products *ProductService
	now      func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, metrics *metrics.AppMetrics, products *ProductService) *CartService {
	return &CartService{
		db:       db,
		metrics:  metrics,
		products: products,
		now:      time.Now,
	}
}

// Contents returns the raw cart of a session. Unknown sessions have an empty cart.
func (s *CartService) Contents(ctx context.Context, sessionID string) (cart.Contents, error) {
	start := time.Now()
	query := "SELECT items FROM carts WHERE session_id = ?"
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&raw)
	recordQuery(ctx, s.metrics, "SELECT", "carts", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return cart.Contents{}, nil
	}
	if err != nil {
		return cart.Contents{}, fmt.Errorf("failed to get cart: %w", err)
	}

	var c cart.Contents
	if err := json.Unmarshal(raw, &c); err != nil {
		return cart.Contents{}, err
	}
	return c, nil
}

// upsertCartQuery writes a cart row in one statement so concurrent first
// writes for a session do not collide on the primary key
func upsertCartQuery(system string) string {
	if system == "mysql" {
		return `INSERT INTO carts (session_id, items, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE items = VALUES(items), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO carts (session_id, items, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`
}

func (s *CartService) save(ctx context.Context, sessionID string, c cart.Contents) error {
	if c.Len() == 0 {
		start := time.Now()
		query := "DELETE FROM carts WHERE session_id = ?"
		_, err := s.db.ExecContext(ctx, query, sessionID)
		recordQuery(ctx, s.metrics, "DELETE", "carts", query, start, err)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
	} else {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode cart: %w", err)
		}

		start := time.Now()
		query := upsertCartQuery(s.db.System())
		_, err = s.db.ExecContext(ctx, query, sessionID, string(raw), s.now().UTC())
		recordQuery(ctx, s.metrics, "UPSERT", "carts", query, start, err)
		if err != nil {
			return fmt.Errorf("failed to save cart: %w", err)
		}
	}

	s.metrics.CartItemsCount.Record(ctx, int64(c.Units()), s.metrics.Attrs())
	return nil
}

// Add puts qty more units of an active product in the cart
func (s *CartService) Add(ctx context.Context, sessionID string, productID int64, qty int) error {
	if _, err := s.products.GetActiveProduct(ctx, productID); err != nil {
		return err
	}

	c, err := s.Contents(ctx, sessionID)
	if err != nil {
		return err
	}
	if qty > models.MaxLineQty || c.Qty(productID)+qty > models.MaxLineQty {
		return ErrInvalidQuantity
	}
	return s.save(ctx, sessionID, c.Add(productID, qty))
}

// SetQuantity overwrites the quantity of a product. qty <= 0 removes it.
func (s *CartService) SetQuantity(ctx context.Context, sessionID string, productID int64, qty int) error {
	if qty > models.MaxLineQty {
		return ErrInvalidQuantity
	}
	c, err := s.Contents(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.save(ctx, sessionID, c.SetQuantity(productID, qty))
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	return s.save(ctx, sessionID, cart.Contents{})
}

// Items resolves the cart against active products, in the order products
// were added. Lines whose product is gone or inactive are skipped.
func (s *CartService) Items(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	c, err := s.Contents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return []models.CartLine{}, nil
	}

	placeholders := make([]string, len(lines))
	args := make([]any, 0, len(lines)+1)
	for i, l := range lines {
		placeholders[i] = "?"
		args = append(args, l.ProductID)
	}
	args = append(args, true)

	start := time.Now()
	query := fmt.Sprintf("SELECT %s FROM products WHERE id IN (%s) AND active = ?", productColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	recordQuery(ctx, s.metrics, "SELECT", "products", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart products: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]models.Product, len(lines))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart products: %w", err)
	}

	out := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, models.CartLine{
			Product:       p,
			Qty:           l.Qty,
			SubtotalCents: p.PriceCents * int64(l.Qty),
		})
	}
	return out, nil
}

// TotalCents sums price times quantity over the resolved lines
func (s *CartService) TotalCents(ctx context.Context, sessionID string) (int64, error) {
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return linesTotal(items), nil
}

// GetCart returns the resolved cart with its total
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*models.CartResponse, error) {
	items, err := s.Items(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	total := linesTotal(items)
	return &models.CartResponse{
		Items:        items,
		TotalCents:   total,
		TotalDisplay: pricing.Money(total),
	}, nil
}

func linesTotal(items []models.CartLine) int64 {
	var total int64
	for _, it := range items {
		total += it.SubtotalCents
	}
	return total
}
