package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("user-1", "teacher", "schoolmarks", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	claims, err := Parse(pair.AccessToken, "test-key", "schoolmarks")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "teacher", claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("user-1", "student", "schoolmarks", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-key", "schoolmarks")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("user-1", "student", "other-app", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "schoolmarks")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("user-1", "student", "schoolmarks", "test-key", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "schoolmarks")
	assert.Error(t, err)
}
