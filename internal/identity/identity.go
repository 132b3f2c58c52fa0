package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated indicates the credential could not be resolved to a
// participant.
var ErrUnauthenticated = errors.New("unauthenticated")

// Resolver maps an opaque credential to a stable participant identifier.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// JWTResolver resolves participants from signed JWT credentials carrying a
// phone claim.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver constructs a JWTResolver.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve verifies the token and returns the participant id from its phone
// claim.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrUnauthenticated
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthenticated
	}
	phone, ok := claims["phone"].(string)
	if !ok || phone == "" {
		return "", ErrUnauthenticated
	}
	return phone, nil
}
