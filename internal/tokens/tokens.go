// Package tokens generates order public tokens, short codes and one-time
// lookup codes.
package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	shortCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	otpAlphabet       = "0123456789"

	publicTokenLength = 40

	DefaultShortCodeLength = 8
	DefaultOTPLength       = 6
)

// Generator produces capability tokens signed with a server secret
type Generator struct {
	secret []byte
	now    func() time.Time
}

// NewGenerator creates a generator signing with secret
func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the generator's clock
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// PublicToken returns an unguessable token for customer-facing order URLs:
// an HMAC-SHA256 over a timestamp and a random nonce, URL-safe base64 encoded
// without padding and cut to 40 characters.
func (g *Generator) PublicToken() string {
	msg := fmt.Sprintf("%d:%s", g.now().UnixNano(), uuid.NewString())
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(msg))

	token := strings.TrimRight(base64.URLEncoding.EncodeToString(mac.Sum(nil)), "=")
	if len(token) > publicTokenLength {
		token = token[:publicTokenLength]
	}
	return token
}

// ShortCode returns n random uppercase letters and digits
func (g *Generator) ShortCode(n int) (string, error) {
	return randomString(shortCodeAlphabet, n)
}

// OTP returns n random digits
func (g *Generator) OTP(n int) (string, error) {
	return randomString(otpAlphabet, n)
}

// OTPExpiry returns the moment a code issued now stops being valid
func (g *Generator) OTPExpiry(ttl time.Duration) time.Time {
	return g.now().Add(ttl)
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
