package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/events"
	"github.com/lojinha/storefront/internal/mailer"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/payments"
	"github.com/lojinha/storefront/internal/pricing"
	"github.com/lojinha/storefront/internal/tokens"
	"github.com/lojinha/storefront/pkg/logkey"
	"go.opentelemetry.io/otel/attribute"
)

const orderColumns = "id, public_token, short_code, customer_email, customer_phone, status, total_cents, payment_provider, payment_provider_id, otp_code, otp_expires_at, created_at"

// OrderOptions tunes order creation and lookup
type OrderOptions struct {
	// OTPTTL is how long a lookup code stays valid
	OTPTTL time.Duration
	// StockZeroMeansUnlimited treats products with stock 0 as always available
	StockZeroMeansUnlimited bool
	// OrderURL builds the customer facing status link for a public token
	OrderURL func(publicToken string) string
}

// OrderService creates orders, reconciles them with the payment provider
// and serves order lookups
type OrderService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	products  *ProductService
	carts     *CartService
	gateway   payments.Gateway
	mail      mailer.Sender
	publisher events.Publisher
	tokens    *tokens.Generator
	opts      OrderOptions
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	db *db.DB,
	metrics *metrics.AppMetrics,
	products *ProductService,
	carts *CartService,
	gateway payments.Gateway,
	mail mailer.Sender,
	publisher events.Publisher,
	gen *tokens.Generator,
	opts OrderOptions,
) *OrderService {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.OrderURL == nil {
		opts.OrderURL = func(token string) string { return "/orders/" + token }
	}
	return &OrderService{
		db:        db,
		metrics:   metrics,
		products:  products,
		carts:     carts,
		gateway:   gateway,
		mail:      mail,
		publisher: publisher,
		tokens:    gen,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock replaces the service clock
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

type orderLine struct {
	product models.Product
	qty     int
}

func (s *OrderService) checkStock(p models.Product, qty int) error {
	if p.Stock == 0 && s.opts.StockZeroMeansUnlimited {
		return nil
	}
	if int64(qty) > p.Stock {
		return &InsufficientStockError{ProductID: p.ID, Title: p.Title, Requested: qty, Available: p.Stock}
	}
	return nil
}

// CheckoutProduct orders qty units of a single product and opens a payment
// preference for it
func (s *OrderService) CheckoutProduct(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	qty := req.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > models.MaxLineQty {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetActiveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStock(*p, qty); err != nil {
		return nil, err
	}

	order, err := s.createOrder(ctx, req.Email, req.Phone, []orderLine{{product: *p, qty: qty}})
	if err != nil {
		return nil, err
	}

	return s.openPreference(ctx, order, payments.PreferenceRequest{
		Title:             p.Title,
		Quantity:          qty,
		UnitPriceCents:    p.PriceCents,
		ExternalReference: strconv.FormatInt(order.ID, 10),
		PayerEmail:        order.CustomerEmail,
	})
}

// CheckoutCart orders everything in the session cart as a single payment.
// The cart is emptied once the payment preference exists.
func (s *OrderService) CheckoutCart(ctx context.Context, sessionID string, req models.CartCheckoutRequest) (*models.CheckoutResponse, error) {
	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]orderLine, 0, len(items))
	for _, it := range items {
		if err := s.checkStock(it.Product, it.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, orderLine{product: it.Product, qty: it.Qty})
	}

	order, err := s.createOrder(ctx, req.Email, req.Phone, lines)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Order (%d items)", len(lines))
	if len(lines) == 1 {
		title = "Order (1 item)"
	}

	resp, err := s.openPreference(ctx, order, payments.PreferenceRequest{
		Title:             title,
		Quantity:          1,
		UnitPriceCents:    order.TotalCents,
		ExternalReference: strconv.FormatInt(order.ID, 10),
		PayerEmail:        order.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		slog.Warn("failed to clear cart after checkout",
			slog.String(logkey.SessionID, sessionID),
			slog.Int64(logkey.OrderID, order.ID),
			slog.String(logkey.Error, err.Error()))
	}
	return resp, nil
}

// createOrder stores a pending order and its items in one transaction. The
// total is fixed here from the current prices.
func (s *OrderService) createOrder(ctx context.Context, email, phone string, lines []orderLine) (*models.Order, error) {
	shortCode, err := s.tokens.ShortCode(tokens.DefaultShortCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate short code: %w", err)
	}

	total, err := orderTotal(lines)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		PublicToken:     s.tokens.PublicToken(),
		ShortCode:       shortCode,
		CustomerEmail:   strings.TrimSpace(email),
		CustomerPhone:   strings.TrimSpace(phone),
		Status:          models.OrderPending,
		TotalCents:      total,
		PaymentProvider: s.gateway.Name(),
		CreatedAt:       s.now().UTC(),
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		orderQuery := `INSERT INTO orders (public_token, short_code, customer_email, customer_phone, status, total_cents, payment_provider, payment_provider_id, otp_code, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?)`
		res, err := tx.ExecContext(ctx, orderQuery, order.PublicToken, order.ShortCode, order.CustomerEmail,
			order.CustomerPhone, order.Status, order.TotalCents, order.PaymentProvider, order.CreatedAt)
		recordQuery(ctx, s.metrics, "INSERT", "orders", orderQuery, start, err)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		order.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get order ID: %w", err)
		}

		itemQuery := "INSERT INTO order_items (order_id, product_id, qty, unit_price_cents) VALUES (?, ?, ?, ?)"
		for _, l := range lines {
			start = time.Now()
			_, err = tx.ExecContext(ctx, itemQuery, order.ID, l.product.ID, l.qty, l.product.PriceCents)
			recordQuery(ctx, s.metrics, "INSERT", "order_items", itemQuery, start, err)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersCreated.Add(ctx, 1, s.metrics.Attrs(
		attribute.String("payment_provider", order.PaymentProvider),
		attribute.Int("lines", len(lines)),
	))
	slog.Info("order created",
		slog.Int64(logkey.OrderID, order.ID),
		slog.String("short_code", order.ShortCode),
		slog.Int64("total_cents", order.TotalCents),
		slog.Int("lines", len(lines)))

	return order, nil
}

// orderTotal sums price times quantity over lines, refusing totals that do
// not fit in an int64
func orderTotal(lines []orderLine) (int64, error) {
	var total int64
	for _, l := range lines {
		price, qty := l.product.PriceCents, int64(l.qty)
		if price < 0 || qty < 1 {
			return 0, ErrInvalidQuantity
		}
		if price > 0 && qty > math.MaxInt64/price {
			return 0, ErrTotalTooLarge
		}
		sub := price * qty
		if total > math.MaxInt64-sub {
			return 0, ErrTotalTooLarge
		}
		total += sub
	}
	return total, nil
}

// openPreference asks the gateway for a checkout. On failure the pending
// order is kept and the gateway error is returned.
func (s *OrderService) openPreference(ctx context.Context, order *models.Order, req payments.PreferenceRequest) (*models.CheckoutResponse, error) {
	pref, err := s.gateway.CreatePreference(ctx, req)
	if err != nil {
		s.metrics.PaymentErrors.Add(ctx, 1, s.metrics.Attrs(
			attribute.String("provider", s.gateway.Name()),
			attribute.String("operation", "create_preference"),
		))
		slog.Error("payment preference failed",
			slog.Int64(logkey.OrderID, order.ID),
			slog.String(logkey.Error, err.Error()))
		return nil, fmt.Errorf("failed to create payment preference: %w", err)
	}

	start := time.Now()
	query := "UPDATE orders SET payment_provider_id = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, pref.ID, order.ID)
	recordQuery(ctx, s.metrics, "UPDATE", "orders", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment reference: %w", err)
	}
	order.PaymentProviderID = pref.ID

	return &models.CheckoutResponse{
		OrderID:   order.ID,
		PublicURL: s.opts.OrderURL(order.PublicToken),
		ShortCode: order.ShortCode,
		InitPoint: pref.CheckoutURL,
	}, nil
}

// Reconciliation is the outcome of a payment notification
type Reconciliation struct {
	OrderID       int64
	PaymentStatus string
	OrderStatus   models.OrderStatus
	// Applied is true when this notification changed the order status
	Applied bool
}

// ReconcilePayment fetches the payment from the gateway and moves the order
// it references out of pending. Approved payments mark the order paid and
// take the ordered units out of stock. Failed payments cancel it. Paid and
// canceled orders never change again, so repeated notifications are no-ops.
func (s *OrderService) ReconcilePayment(ctx context.Context, paymentID string) (*Reconciliation, error) {
	info, err := s.gateway.GetPaymentInfo(ctx, paymentID)
	if err != nil {
		s.metrics.PaymentErrors.Add(ctx, 1, s.metrics.Attrs(
			attribute.String("provider", s.gateway.Name()),
			attribute.String("operation", "get_payment"),
		))
		return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	orderID, err := strconv.ParseInt(strings.TrimSpace(info.ExternalReference), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: reference %q", ErrOrderNotResolved, info.ExternalReference)
	}
	order, err := s.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: reference %q", ErrOrderNotResolved, info.ExternalReference)
	}
	if err != nil {
		return nil, err
	}

	status := strings.ToLower(info.Status)
	result := &Reconciliation{OrderID: order.ID, PaymentStatus: status, OrderStatus: order.Status}

	var target models.OrderStatus
	switch {
	case payments.Approved(status):
		target = models.OrderPaid
		result.Applied, err = s.markPaid(ctx, order.ID)
	case payments.Failed(status):
		target = models.OrderCanceled
		result.Applied, err = s.transition(ctx, order.ID, models.OrderCanceled)
	}
	if err != nil {
		return nil, err
	}

	if result.Applied {
		order.Status = target
		result.OrderStatus = target
		s.afterTransition(ctx, order, info.ID)
	} else if current, err := s.GetOrder(ctx, order.ID); err == nil {
		order.Status = current.Status
		result.OrderStatus = current.Status
	}

	slog.Info("payment reconciled",
		slog.Int64(logkey.OrderID, order.ID),
		slog.String(logkey.PaymentID, info.ID),
		slog.String("payment_status", status),
		slog.String(logkey.Status, string(result.OrderStatus)),
		slog.Bool("applied", result.Applied))

	s.notify(ctx, order)
	return result, nil
}

// transition moves an order from pending to status. It reports whether the
// order was still pending.
func (s *OrderService) transition(ctx context.Context, orderID int64, status models.OrderStatus) (bool, error) {
	start := time.Now()
	query := "UPDATE orders SET status = ? WHERE id = ? AND status = ?"
	res, err := s.db.ExecContext(ctx, query, status, orderID, models.OrderPending)
	recordQuery(ctx, s.metrics, "UPDATE", "orders", query, start, err)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// markPaid flips a pending order to paid and decrements stock for each of
// its items in the same transaction. Stock never goes below zero.
func (s *OrderService) markPaid(ctx context.Context, orderID int64) (bool, error) {
	applied := false
	stock := make(map[int64]int64)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "UPDATE orders SET status = ? WHERE id = ? AND status = ?"
		res, err := tx.ExecContext(ctx, query, models.OrderPaid, orderID, models.OrderPending)
		recordQuery(ctx, s.metrics, "UPDATE", "orders", query, start, err)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		applied = true

		start = time.Now()
		itemsQuery := "SELECT product_id, qty FROM order_items WHERE order_id = ?"
		rows, err := tx.QueryContext(ctx, itemsQuery, orderID)
		recordQuery(ctx, s.metrics, "SELECT", "order_items", itemsQuery, start, err)
		if err != nil {
			return fmt.Errorf("failed to get order items: %w", err)
		}
		type line struct {
			productID int64
			qty       int64
		}
		var lines []line
		for rows.Next() {
			var l line
			if err := rows.Scan(&l.productID, &l.qty); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan order item: %w", err)
			}
			lines = append(lines, l)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("failed to close order items: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate order items: %w", err)
		}

		decrement := "UPDATE products SET stock = CASE WHEN stock > ? THEN stock - ? ELSE 0 END WHERE id = ?"
		current := "SELECT stock FROM products WHERE id = ?"
		for _, l := range lines {
			start = time.Now()
			_, err := tx.ExecContext(ctx, decrement, l.qty, l.qty, l.productID)
			recordQuery(ctx, s.metrics, "UPDATE", "products", decrement, start, err)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}

			start = time.Now()
			var left int64
			err = tx.QueryRowContext(ctx, current, l.productID).Scan(&left)
			recordQuery(ctx, s.metrics, "SELECT", "products", current, start, err)
			if err != nil {
				return fmt.Errorf("failed to read stock: %w", err)
			}
			stock[l.productID] = left
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	for productID, left := range stock {
		s.products.recordStock(ctx, productID, left)
	}
	return applied, nil
}

func (s *OrderService) afterTransition(ctx context.Context, order *models.Order, paymentID string) {
	s.metrics.OrderTransitions.Add(ctx, 1, s.metrics.Attrs(attribute.String("order_status", string(order.Status))))
	if order.Status == models.OrderPaid {
		revenue := pricing.ToUnits(order.TotalCents).InexactFloat64()
		s.metrics.RevenueTotal.Add(ctx, revenue, s.metrics.Attrs(attribute.String("payment_provider", order.PaymentProvider)))
	}

	event := events.OrderStatusChanged{
		OrderID:    order.ID,
		ShortCode:  order.ShortCode,
		Status:     string(order.Status),
		TotalCents: order.TotalCents,
		PaymentID:  paymentID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.PublishOrderStatus(ctx, event); err != nil {
		slog.Warn("failed to publish order event",
			slog.Int64(logkey.OrderID, order.ID),
			slog.String(logkey.Error, err.Error()))
	}
}

// notify emails the customer the current order status. Failures are logged only.
func (s *OrderService) notify(ctx context.Context, order *models.Order) {
	if order.CustomerEmail == "" {
		return
	}
	msg := mailer.OrderUpdated(order.CustomerEmail, order.ShortCode, string(order.Status), s.opts.OrderURL(order.PublicToken))
	if err := s.mail.Send(ctx, msg); err != nil {
		slog.Warn("failed to send order update email",
			slog.Int64(logkey.OrderID, order.ID),
			slog.String(logkey.Error, err.Error()))
	}
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o       models.Order
		status  string
		expires sql.NullTime
	)
	err := row.Scan(&o.ID, &o.PublicToken, &o.ShortCode, &o.CustomerEmail, &o.CustomerPhone, &status,
		&o.TotalCents, &o.PaymentProvider, &o.PaymentProviderID, &o.OTPCode, &expires, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	if expires.Valid {
		t := expires.Time
		o.OTPExpiresAt = &t
	}
	return &o, nil
}

// GetOrder returns an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, orderID))
	recordQuery(ctx, s.metrics, "SELECT", "orders", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrderStatus returns the order behind a public token with its items
func (s *OrderService) GetOrderStatus(ctx context.Context, publicToken string) (*models.OrderStatusResponse, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE public_token = ?"
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, publicToken))
	recordQuery(ctx, s.metrics, "SELECT", "orders", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	start = time.Now()
	itemsQuery := `SELECT oi.id, oi.order_id, oi.product_id, p.title, oi.qty, oi.unit_price_cents
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = ?
		ORDER BY oi.id`
	rows, err := s.db.QueryContext(ctx, itemsQuery, order.ID)
	recordQuery(ctx, s.metrics, "SELECT", "order_items", itemsQuery, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	resp := &models.OrderStatusResponse{
		Order:        *order,
		Items:        []models.OrderItem{},
		TotalDisplay: pricing.Money(order.TotalCents),
	}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductTitle, &it.Qty, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		resp.Items = append(resp.Items, it)
		resp.ItemsCount += it.Qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}
	return resp, nil
}

// MonitorPendingOrders periodically records how many orders wait for payment.
// It returns when ctx is done.
func (s *OrderService) MonitorPendingOrders(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.CountPending(ctx); err == nil {
				s.metrics.PendingOrders.Record(ctx, n, s.metrics.Attrs())
			}
		}
	}
}

// CountPending returns the number of orders waiting for payment
func (s *OrderService) CountPending(ctx context.Context) (int64, error) {
	start := time.Now()
	query := "SELECT COUNT(*) FROM orders WHERE status = ?"
	var n int64
	err := s.db.QueryRowContext(ctx, query, models.OrderPending).Scan(&n)
	recordQuery(ctx, s.metrics, "SELECT", "orders", query, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}
	return n, nil
}
