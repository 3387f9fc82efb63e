package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("acct-1", "Alice", []string{"player", "admin"}, false)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, []string{"player", "admin"}, claims.Roles)
	assert.False(t, claims.Anonymous)
	assert.Equal(t, "hyperscape", claims.Issuer)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).Generate("acct-1", "Alice", nil, true)
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)
	token, err := m.Generate("acct-1", "Alice", nil, false)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	_, err := NewJWTManager("test-secret", time.Hour).Verify("not.a.token")
	assert.Error(t, err)
}

func TestAnonLimiterBurstAndIsolation(t *testing.T) {
	l := NewAnonLimiter(5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "another IP unaffected")
}

func TestAnonLimiterDisabledWhenZero(t *testing.T) {
	l := NewAnonLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
}

func TestAnonLimiterPrune(t *testing.T) {
	l := NewAnonLimiter(5)
	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")

	assert.Equal(t, 0, l.Prune(time.Minute), "nothing idle yet")
	assert.Equal(t, 2, l.Prune(0))
}
