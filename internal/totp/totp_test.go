package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	g := New(0)

	s1, err := g.GenerateSecret()
	require.NoError(t, err)
	s2, err := g.GenerateSecret()
	require.NoError(t, err)

	// 20 random bytes -> 32 base32 chars.
	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)
}

func TestTokenStableWithinBucket(t *testing.T) {
	g := New(15 * time.Second)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	t1, err := g.TokenAt(secret, base)
	require.NoError(t, err)
	t2, err := g.TokenAt(secret, base.Add(14*time.Second))
	require.NoError(t, err)

	assert.Equal(t, t1, t2)
	assert.Len(t, t1, 6)
}

func TestTokenChangesAcrossBuckets(t *testing.T) {
	g := New(15 * time.Second)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	t1, err := g.TokenAt(secret, base)
	require.NoError(t, err)
	t2, err := g.TokenAt(secret, base.Add(15*time.Second))
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
}

func TestVerify(t *testing.T) {
	g := New(15 * time.Second)
	secret, err := g.GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	token, err := g.TokenAt(secret, now)
	require.NoError(t, err)

	assert.True(t, g.VerifyAt(secret, token, now))
	if token != "000000" {
		assert.False(t, g.VerifyAt(secret, "000000", now))
	}
	// A token from the previous bucket is rejected; no skew tolerance.
	assert.False(t, g.VerifyAt(secret, token, now.Add(30*time.Second)))
}

func TestVerifyBadSecret(t *testing.T) {
	g := New(15 * time.Second)

	_, err := g.TokenAt("not base32!!", time.Now())
	assert.Error(t, err)
	assert.False(t, g.VerifyToken("not base32!!", "123456"))
}
