package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/db/dbtest"
	"github.com/lojinha/storefront/internal/events"
	"github.com/lojinha/storefront/internal/mailer"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/payments"
	"github.com/lojinha/storefront/internal/tokens"
	"github.com/stretchr/testify/require"
)

// fakeGateway answers like the mock gateway unless told otherwise
type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	getErr    error
	status    string
	reference string
	requests  []payments.PreferenceRequest
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePreference(_ context.Context, req payments.PreferenceRequest) (*payments.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payments.Preference{
		ID:          "pref_" + req.ExternalReference,
		CheckoutURL: "https://pay.example.com/" + req.ExternalReference,
	}, nil
}

func (g *fakeGateway) GetPaymentInfo(_ context.Context, paymentID string) (*payments.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	ref := g.reference
	if ref == "" {
		ref = paymentID
	}
	status := g.status
	if status == "" {
		status = "approved"
	}
	return &payments.PaymentInfo{ID: paymentID, Status: status, ExternalReference: ref}, nil
}

func (g *fakeGateway) lastRequest() payments.PreferenceRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []mailer.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []events.OrderStatusChanged
}

func (p *fakePublisher) PublishOrderStatus(_ context.Context, e events.OrderStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Close() {}

type fixture struct {
	db         *db.DB
	products   *ProductService
	categories *CategoryService
	carts      *CartService
	orders     *OrderService
	gateway    *fakeGateway
	mail       *fakeMailer
	events     *fakePublisher
	now        time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := dbtest.New(t)
	m := metrics.NewNoop()

	f := &fixture{
		db:      database,
		gateway: &fakeGateway{},
		mail:    &fakeMailer{},
		events:  &fakePublisher{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	f.products = NewProductService(database, m, 6, 1000)
	f.categories = NewCategoryService(database, m)
	f.carts = NewCartService(database, m, f.products)
	gen := tokens.NewGenerator("test-secret").WithClock(f.clock)
	f.orders = NewOrderService(database, m, f.products, f.carts, f.gateway, f.mail, f.events, gen, OrderOptions{
		OTPTTL:                  10 * time.Minute,
		StockZeroMeansUnlimited: true,
		OrderURL:                func(token string) string { return "https://shop.example.com/orders/" + token },
	}).WithClock(f.clock)

	return f
}

func (f *fixture) createProduct(t *testing.T, title, slug string, priceCents, stock int64) *models.Product {
	t.Helper()
	p, err := f.products.CreateProduct(context.Background(), models.ProductInput{
		Title:      title,
		Slug:       slug,
		PriceCents: priceCents,
		Stock:      stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := f.products.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

var errBoom = errors.New("boom")
