package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lojinha/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuedCode(t *testing.T, f *fixture, orderID int64) string {
	t.Helper()
	order, err := f.orders.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotEmpty(t, order.OTPCode)
	return order.OTPCode
}

func TestLookupCodeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 2500, 10)
	order := checkoutOne(t, f, p.ID, 1, "Ana@Example.com")

	require.NoError(t, f.orders.RequestLookupCode(ctx, " ana@example.com ", strings.ToLower(order.ShortCode)))
	code := issuedCode(t, f, order.ID)
	assert.Len(t, code, 6)

	mails := f.mail.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, "ana@example.com", mails[0].To)
	assert.Contains(t, mails[0].Body, code)
	assert.Contains(t, mails[0].Body, "10 minutes")

	url, err := f.orders.VerifyLookupCode(ctx, "ANA@example.com", order.ShortCode, code)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/orders/"+order.PublicToken, url)

	// the code stays valid until it expires
	_, err = f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, code)
	assert.NoError(t, err)
}

func TestVerifyLookupCodeFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 2500, 10)
	order := checkoutOne(t, f, p.ID, 1, "ana@example.com")

	_, err := f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, "123456")
	assert.ErrorIs(t, err, ErrOTPNotRequested)

	require.NoError(t, f.orders.RequestLookupCode(ctx, "ana@example.com", order.ShortCode))
	code := issuedCode(t, f, order.ID)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, wrong)
	assert.ErrorIs(t, err, ErrOTPMismatch)

	_, err = f.orders.VerifyLookupCode(ctx, "bia@example.com", order.ShortCode, code)
	assert.ErrorIs(t, err, ErrLookupNoMatch)

	_, err = f.orders.VerifyLookupCode(ctx, "ana@example.com", "", code)
	assert.ErrorIs(t, err, ErrLookupFieldsMissing)

	f.advance(10*time.Minute + time.Second)
	_, err = f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestRequestLookupCodeReplacesPreviousCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 2500, 10)
	order := checkoutOne(t, f, p.ID, 1, "ana@example.com")

	var codes []string
	for len(codes) < 2 {
		require.NoError(t, f.orders.RequestLookupCode(ctx, "ana@example.com", order.ShortCode))
		code := issuedCode(t, f, order.ID)
		if len(codes) == 1 && code == codes[0] {
			continue
		}
		codes = append(codes, code)
	}

	_, err := f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, codes[0])
	assert.ErrorIs(t, err, ErrOTPMismatch)
	_, err = f.orders.VerifyLookupCode(ctx, "ana@example.com", order.ShortCode, codes[1])
	assert.NoError(t, err)
}

func TestRequestLookupCodeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 2500, 10)
	order := checkoutOne(t, f, p.ID, 1, "ana@example.com")

	assert.ErrorIs(t, f.orders.RequestLookupCode(ctx, "  ", ""), ErrEmailRequired)
	assert.ErrorIs(t, f.orders.RequestLookupCode(ctx, "bia@example.com", ""), ErrNoOrdersForEmail)
	assert.ErrorIs(t, f.orders.RequestLookupCode(ctx, "ana@example.com", "ZZZZZZZZ"), ErrLookupNoMatch)
	assert.Empty(t, f.mail.messages())

	// a mail failure does not fail the request
	f.mail.err = errBoom
	assert.NoError(t, f.orders.RequestLookupCode(ctx, "ana@example.com", order.ShortCode))
}

func TestRequestLookupCodeWithoutShortCodeUsesNewestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, "Caneca", "caneca", 2500, 10)
	older := checkoutOne(t, f, p.ID, 1, "ana@example.com")
	f.advance(time.Hour)
	newer := checkoutOne(t, f, p.ID, 1, "ana@example.com")

	require.NoError(t, f.orders.RequestLookupCode(ctx, "ana@example.com", ""))

	got, err := f.orders.GetOrder(ctx, newer.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.OTPCode)

	got, err = f.orders.GetOrder(ctx, older.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OTPCode)
	assert.Equal(t, models.OrderPending, got.Status)
}
