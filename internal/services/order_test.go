package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutProductSnapshotsTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 1000, 10)

	resp, err := f.orders.CheckoutProduct(ctx, models.CheckoutRequest{ProductID: p.ID, Qty: 3, Email: "ana@example.com", Phone: "11999990000"})
	require.NoError(t, err)

	assert.NotZero(t, resp.OrderID)
	assert.Len(t, resp.ShortCode, 8)
	assert.Equal(t, "https://pay.example.com/"+strconv.FormatInt(resp.OrderID, 10), resp.InitPoint)
	assert.True(t, strings.HasPrefix(resp.PublicURL, "https://shop.example.com/orders/"))

	req := f.gateway.lastRequest()
	assert.Equal(t, "Caneca", req.Title)
	assert.Equal(t, 3, req.Quantity)
	assert.Equal(t, int64(1000), req.UnitPriceCents)
	assert.Equal(t, "ana@example.com", req.PayerEmail)

	// later price changes never touch the order
	_, err = f.products.UpdateProduct(ctx, p.ID, models.ProductInput{Title: "Caneca", Slug: "caneca", PriceCents: 5000, Stock: 10})
	require.NoError(t, err)

	order, err := f.orders.GetOrder(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "fake", order.PaymentProvider)
	assert.Equal(t, "pref_"+strconv.FormatInt(order.ID, 10), order.PaymentProviderID)

	status, err := f.orders.GetOrderStatus(ctx, order.PublicToken)
	require.NoError(t, err)
	require.Len(t, status.Items, 1)
	assert.Equal(t, int64(1000), status.Items[0].UnitPriceCents)
	assert.Equal(t, "Caneca", status.Items[0].ProductTitle)
	assert.Equal(t, 3, status.ItemsCount)
	assert.Equal(t, "R$ 30,00", status.TotalDisplay)
}

func TestCheckoutProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limited := f.createProduct(t, "Camiseta", "camiseta", 5000, 2)
	unlimited := f.createProduct(t, "Adesivo", "adesivo", 500, 0)

	inactive := false
	hidden, err := f.products.CreateProduct(ctx, models.ProductInput{Title: "Oculto", Slug: "oculto", PriceCents: 100, Active: &inactive})
	require.NoError(t, err)

	testCases := []struct {
		name        string
		req         models.CheckoutRequest
		checkResult func(t *testing.T, resp *models.CheckoutResponse, err error)
	}{
		{
			name: "missing qty means one",
			req:  models.CheckoutRequest{ProductID: limited.ID},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				require.NoError(t, err)
				order, err := f.orders.GetOrder(ctx, resp.OrderID)
				require.NoError(t, err)
				assert.Equal(t, int64(5000), order.TotalCents)
			},
		},
		{
			name: "negative qty",
			req:  models.CheckoutRequest{ProductID: limited.ID, Qty: -2},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				assert.ErrorIs(t, err, ErrInvalidQuantity)
			},
		},
		{
			name: "more than stock",
			req:  models.CheckoutRequest{ProductID: limited.ID, Qty: 3},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				var stockErr *InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, int64(2), stockErr.Available)
				assert.Equal(t, 3, stockErr.Requested)
			},
		},
		{
			name: "zero stock is unlimited",
			req:  models.CheckoutRequest{ProductID: unlimited.ID, Qty: 50},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				require.NoError(t, err)
			},
		},
		{
			name: "qty above line limit",
			req:  models.CheckoutRequest{ProductID: unlimited.ID, Qty: 1e16},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				assert.ErrorIs(t, err, ErrInvalidQuantity)
				assert.Nil(t, resp)
			},
		},
		{
			name: "inactive product",
			req:  models.CheckoutRequest{ProductID: hidden.ID},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				assert.ErrorIs(t, err, ErrProductNotFound)
			},
		},
		{
			name: "unknown product",
			req:  models.CheckoutRequest{ProductID: 9999},
			checkResult: func(t *testing.T, resp *models.CheckoutResponse, err error) {
				assert.ErrorIs(t, err, ErrProductNotFound)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := f.orders.CheckoutProduct(ctx, tc.req)
			tc.checkResult(t, resp, err)
		})
	}
}

func TestOrderTotal(t *testing.T) {
	line := func(price int64, qty int) orderLine {
		return orderLine{product: models.Product{PriceCents: price}, qty: qty}
	}

	testCases := []struct {
		name      string
		lines     []orderLine
		wantTotal int64
		wantErr   error
	}{
		{name: "sums lines", lines: []orderLine{line(1000, 2), line(250, 3)}, wantTotal: 2750},
		{name: "free product", lines: []orderLine{line(0, 999)}, wantTotal: 0},
		{name: "line overflows", lines: []orderLine{line(math.MaxInt64/2, 3)}, wantErr: ErrTotalTooLarge},
		{name: "sum overflows", lines: []orderLine{line(math.MaxInt64/2, 1), line(math.MaxInt64/2, 1), line(2, 1)}, wantErr: ErrTotalTooLarge},
		{name: "zero qty", lines: []orderLine{line(1000, 0)}, wantErr: ErrInvalidQuantity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := orderTotal(tc.lines)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantTotal, total)
		})
	}
}

func TestCheckoutCartTotalTooLarge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Joia", "joia", math.MaxInt64/2, 0)
	require.NoError(t, f.carts.Add(ctx, "s1", p.ID, 3))

	_, err := f.orders.CheckoutCart(ctx, "s1", models.CartCheckoutRequest{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrTotalTooLarge)

	var orders int
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&orders))
	assert.Zero(t, orders)
}

func TestCheckoutZeroStockWhenNotUnlimited(t *testing.T) {
	f := newFixture(t)
	f.orders.opts.StockZeroMeansUnlimited = false
	p := f.createProduct(t, "Adesivo", "adesivo", 500, 0)

	_, err := f.orders.CheckoutProduct(context.Background(), models.CheckoutRequest{ProductID: p.ID, Qty: 1})
	var stockErr *InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)
}

func TestCheckoutGatewayFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 1000, 10)
	f.gateway.createErr = &payments.Error{Provider: "fake", StatusCode: http.StatusBadGateway, Body: "down"}

	_, err := f.orders.CheckoutProduct(ctx, models.CheckoutRequest{ProductID: p.ID, Qty: 1})
	var perr *payments.Error
	require.ErrorAs(t, err, &perr)

	pending, err := f.orders.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	order, err := f.orders.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, order.PaymentProviderID)
}

func TestCheckoutCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createProduct(t, "Caneca", "caneca", 1000, 10)
	b := f.createProduct(t, "Camiseta", "camiseta", 4990, 10)

	require.NoError(t, f.carts.Add(ctx, "s1", a.ID, 2))
	require.NoError(t, f.carts.Add(ctx, "s1", b.ID, 1))

	resp, err := f.orders.CheckoutCart(ctx, "s1", models.CartCheckoutRequest{Email: "ana@example.com"})
	require.NoError(t, err)

	req := f.gateway.lastRequest()
	assert.Equal(t, "Order (2 items)", req.Title)
	assert.Equal(t, 1, req.Quantity)
	assert.Equal(t, int64(6990), req.UnitPriceCents)

	order, err := f.orders.GetOrder(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(6990), order.TotalCents)

	items, err := f.carts.Items(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items)

	status, err := f.orders.GetOrderStatus(ctx, order.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, 3, status.ItemsCount)
	assert.Len(t, status.Items, 2)
}

func TestCheckoutCartSingleItemTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createProduct(t, "Caneca", "caneca", 1000, 10)
	require.NoError(t, f.carts.Add(ctx, "s1", a.ID, 3))

	_, err := f.orders.CheckoutCart(ctx, "s1", models.CartCheckoutRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Order (1 item)", f.gateway.lastRequest().Title)
}

func TestCheckoutCartErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.CheckoutCart(ctx, "empty", models.CartCheckoutRequest{})
	assert.ErrorIs(t, err, ErrEmptyCart)

	p := f.createProduct(t, "Caneca", "caneca", 1000, 1)
	require.NoError(t, f.carts.Add(ctx, "s1", p.ID, 2))
	_, err = f.orders.CheckoutCart(ctx, "s1", models.CartCheckoutRequest{})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// a failed payment keeps the cart
	require.NoError(t, f.carts.SetQuantity(ctx, "s1", p.ID, 1))
	f.gateway.createErr = errBoom
	_, err = f.orders.CheckoutCart(ctx, "s1", models.CartCheckoutRequest{})
	require.ErrorIs(t, err, errBoom)
	items, err := f.carts.Items(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func checkoutOne(t *testing.T, f *fixture, productID int64, qty int, email string) *models.Order {
	t.Helper()
	resp, err := f.orders.CheckoutProduct(context.Background(), models.CheckoutRequest{ProductID: productID, Qty: qty, Email: email})
	require.NoError(t, err)
	order, err := f.orders.GetOrder(context.Background(), resp.OrderID)
	require.NoError(t, err)
	return order
}

func TestReconcileApprovedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 2, "ana@example.com")
	paymentID := strconv.FormatInt(order.ID, 10)

	first, err := f.orders.ReconcilePayment(ctx, paymentID)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, models.OrderPaid, first.OrderStatus)
	assert.Equal(t, int64(3), f.stockOf(t, p.ID))

	second, err := f.orders.ReconcilePayment(ctx, paymentID)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, models.OrderPaid, second.OrderStatus)
	assert.Equal(t, int64(3), f.stockOf(t, p.ID))

	// every resolved event notifies, only the transition is published
	mails := f.mail.messages()
	require.Len(t, mails, 2)
	assert.Equal(t, "ana@example.com", mails[0].To)
	assert.Contains(t, mails[0].Body, order.ShortCode)
	assert.Contains(t, mails[0].Body, "paid")
	assert.Contains(t, mails[0].Body, "https://shop.example.com/orders/"+order.PublicToken)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, order.ID, f.events.events[0].OrderID)
	assert.Equal(t, "paid", f.events.events[0].Status)
}

func TestReconcileAccreditedCountsAsApproved(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 1, "")
	f.gateway.status = "accredited"

	res, err := f.orders.ReconcilePayment(context.Background(), strconv.FormatInt(order.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, res.OrderStatus)
	assert.Equal(t, int64(4), f.stockOf(t, p.ID))
	// no email address, no email
	assert.Empty(t, f.mail.messages())
}

func TestReconcileFailedPaymentCancels(t *testing.T) {
	for _, status := range []string{"rejected", "cancelled", "expired"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
			order := checkoutOne(t, f, p.ID, 2, "ana@example.com")
			f.gateway.status = status

			res, err := f.orders.ReconcilePayment(context.Background(), strconv.FormatInt(order.ID, 10))
			require.NoError(t, err)
			assert.True(t, res.Applied)
			assert.Equal(t, models.OrderCanceled, res.OrderStatus)
			assert.Equal(t, int64(5), f.stockOf(t, p.ID))
		})
	}
}

func TestReconcileCanceledOrderStaysCanceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 2, "")
	paymentID := strconv.FormatInt(order.ID, 10)

	f.gateway.status = "rejected"
	_, err := f.orders.ReconcilePayment(ctx, paymentID)
	require.NoError(t, err)

	f.gateway.status = "approved"
	res, err := f.orders.ReconcilePayment(ctx, paymentID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, models.OrderCanceled, res.OrderStatus)
	assert.Equal(t, int64(5), f.stockOf(t, p.ID))
}

func TestReconcilePendingPaymentLeavesOrder(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 1, "ana@example.com")
	f.gateway.status = "in_process"

	res, err := f.orders.ReconcilePayment(context.Background(), strconv.FormatInt(order.ID, 10))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, models.OrderPending, res.OrderStatus)
	assert.Len(t, f.mail.messages(), 1)
}

func TestReconcileStockFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 4, "")

	// someone else bought most of the stock meanwhile
	_, err := f.products.UpdateProduct(ctx, p.ID, models.ProductInput{Title: "Caneca", Slug: "caneca", PriceCents: 1000, Stock: 1})
	require.NoError(t, err)

	_, err = f.orders.ReconcilePayment(ctx, strconv.FormatInt(order.ID, 10))
	require.NoError(t, err)
	assert.Zero(t, f.stockOf(t, p.ID))
}

func TestReconcileUnresolvedReference(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	checkoutOne(t, f, p.ID, 1, "")

	for _, ref := range []string{"not-a-number", "9999"} {
		f.gateway.reference = ref
		_, err := f.orders.ReconcilePayment(context.Background(), "pay-1")
		assert.ErrorIs(t, err, ErrOrderNotResolved, ref)
	}

	// no fallback onto the pending order
	order, err := f.orders.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, int64(5), f.stockOf(t, p.ID))
}

func TestReconcileGatewayError(t *testing.T) {
	f := newFixture(t)
	f.gateway.getErr = &payments.Error{Provider: "fake", StatusCode: http.StatusInternalServerError}

	_, err := f.orders.ReconcilePayment(context.Background(), "1")
	var perr *payments.Error
	assert.True(t, errors.As(err, &perr))
}

func TestReconcileSwallowsNotificationErrors(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct(t, "Caneca", "caneca", 1000, 5)
	order := checkoutOne(t, f, p.ID, 1, "ana@example.com")
	f.mail.err = errBoom
	f.events.err = errBoom

	res, err := f.orders.ReconcilePayment(context.Background(), strconv.FormatInt(order.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, res.OrderStatus)
}

func TestGetOrderStatusUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.GetOrderStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMonitorPendingOrdersStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.orders.MonitorPendingOrders(ctx, 0)
		close(done)
	}()
	cancel()
	<-done
}
