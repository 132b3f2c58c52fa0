package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolveValidToken(t *testing.T) {
	resolver := NewJWTResolver("test-secret")
	credential := signToken(t, "test-secret", jwt.MapClaims{
		"phone": "84911111111",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	participantID, err := resolver.Resolve(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "84911111111", participantID)
}

func TestResolveWrongSecret(t *testing.T) {
	resolver := NewJWTResolver("test-secret")
	credential := signToken(t, "other-secret", jwt.MapClaims{"phone": "84911111111"})

	_, err := resolver.Resolve(context.Background(), credential)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveExpiredToken(t *testing.T) {
	resolver := NewJWTResolver("test-secret")
	credential := signToken(t, "test-secret", jwt.MapClaims{
		"phone": "84911111111",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})

	_, err := resolver.Resolve(context.Background(), credential)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveMissingPhoneClaim(t *testing.T) {
	resolver := NewJWTResolver("test-secret")
	credential := signToken(t, "test-secret", jwt.MapClaims{"sub": "someone"})

	_, err := resolver.Resolve(context.Background(), credential)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveEmptyCredential(t *testing.T) {
	resolver := NewJWTResolver("test-secret")

	_, err := resolver.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = resolver.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
