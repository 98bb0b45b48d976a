package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/lojinha/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSenderSend(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s := NewSMTPSender("smtp.example.com", "587", "user", "pass", "loja@example.com")
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := s.Send(context.Background(), LookupCode("ana@example.com", "123456", 10))
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "loja@example.com", gotFrom)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your verification code\r\n")
	assert.Contains(t, gotMsg, "Your code is: 123456. It expires in 10 minutes.")
}

func TestSMTPSenderError(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", "25", "", "", "loja@example.com")
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), OrderUpdated("ana@example.com", "ABCD1234", "paid", "https://shop/orders/t"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPSenderCanceledContext(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", "25", "", "", "loja@example.com")
	called := false
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, Message{To: "a@b.c"}), context.Canceled)
	assert.False(t, called)
}

func TestOrderUpdatedMessage(t *testing.T) {
	msg := OrderUpdated("ana@example.com", "ABCD1234", "paid", "https://shop/orders/tok")
	assert.Equal(t, "Order updated", msg.Subject)
	assert.Equal(t, "Your order ABCD1234 is now: paid.\nTrack it at: https://shop/orders/tok", msg.Body)
}

func TestNewSelectsBackend(t *testing.T) {
	assert.IsType(t, LogSender{}, New(&config.Config{EmailBackend: "console"}))
	assert.IsType(t, &SMTPSender{}, New(&config.Config{EmailBackend: "smtp", SMTPHost: "localhost", SMTPPort: "25"}))
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@b.c"}))
}
