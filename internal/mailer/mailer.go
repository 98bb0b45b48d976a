// Package mailer sends customer notifications by email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/lojinha/storefront/pkg/config"
)

// Message is a plain text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them
type LogSender struct {
	From string
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	slog.Info("email",
		slog.String("from", s.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// SMTPSender delivers messages through an SMTP relay
type SMTPSender struct {
	Addr     string
	Host     string
	From     string
	Username string
	Password string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a sender for host:port
func NewSMTPSender(host, port, username, password, from string) *SMTPSender {
	return &SMTPSender{
		Addr:     net.JoinHostPort(host, port),
		Host:     host,
		From:     from,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	if err := s.send(s.Addr, auth, s.From, []string{msg.To}, compose(s.From, msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

func compose(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body + "\r\n")
	return []byte(b.String())
}

// New returns the sender selected by EMAIL_BACKEND
func New(cfg *config.Config) Sender {
	if cfg.EmailBackend == "smtp" {
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.DefaultFromEmail)
	}
	return LogSender{From: cfg.DefaultFromEmail}
}

// OrderUpdated is sent when a payment event changes what the customer sees
func OrderUpdated(to, shortCode, status, statusURL string) Message {
	return Message{
		To:      to,
		Subject: "Order updated",
		Body:    fmt.Sprintf("Your order %s is now: %s.\nTrack it at: %s", shortCode, status, statusURL),
	}
}

// LookupCode carries a one-time code for order lookup
func LookupCode(to, code string, validMinutes int) Message {
	return Message{
		To:      to,
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Your code is: %s. It expires in %d minutes.", code, validMinutes),
	}
}
