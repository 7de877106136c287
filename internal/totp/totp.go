package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultInterval is the code rotation period. Codes are valid for the whole
// interval; there is no lookbehind window, so a code submitted right after a
// bucket boundary fails. Accepted trade-off for a roll-call display.
const DefaultInterval = 15 * time.Second

// Generator produces time-bucketed one-time codes from a shared secret.
// It keeps no counter state, so independently running instances agree on the
// current code without synchronization.
type Generator struct {
	interval time.Duration
}

// New creates a generator with the given rotation interval.
func New(interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{interval: interval}
}

// GenerateSecret returns a fresh base32-encoded 160-bit secret.
func (g *Generator) GenerateSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: secret generation: %w", err)
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}

// GenerateToken returns the 6-digit code for the current time bucket.
func (g *Generator) GenerateToken(secret string) (string, error) {
	return g.TokenAt(secret, time.Now())
}

// TokenAt computes the code for the bucket containing at. RFC 6238 counter
// over the interval, HMAC-SHA1, RFC 4226 dynamic truncation.
func (g *Generator) TokenAt(secret string, at time.Time) (string, error) {
	key, err := base32.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("totp: bad secret encoding: %w", err)
	}

	counter := uint64(at.Unix() / int64(g.interval/time.Second))
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	return fmt.Sprintf("%06d", code%1000000), nil
}

// VerifyToken reports whether candidate matches the current code.
func (g *Generator) VerifyToken(secret, candidate string) bool {
	return g.VerifyAt(secret, candidate, time.Now())
}

// VerifyAt regenerates the code for at and compares for exact equality.
// Any mismatch fails, including clock skew past the bucket boundary.
func (g *Generator) VerifyAt(secret, candidate string, at time.Time) bool {
	current, err := g.TokenAt(secret, at)
	if err != nil {
		return false
	}
	return candidate == current
}
