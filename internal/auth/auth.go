// Package auth verifies JWT bearer tokens against the auth server's JWKS
// endpoint. Tokens are issued out-of-band (Better Auth by default, which
// signs with EdDSA); this backend only ever verifies. Expired and malformed
// tokens are distinguished so clients know whether to refresh or re-login.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roboverse/bookqa-go/internal/apperr"
)

// validMethods lists the accepted signature algorithms. Anything else
// (notably "none" and the HMAC family) is rejected before key lookup.
var validMethods = []string{"EdDSA", "RS256", "ES256"}

// User is the identity extracted from a verified token.
type User struct {
	ID    string
	Email string
}

// Verifier validates bearer tokens against one JWKS endpoint.
// Safe for concurrent use.
type Verifier struct {
	keys *jwksCache
}

// NewVerifier constructs a Verifier for the given JWKS URL
// (e.g. "https://auth.example.com/api/auth/jwks").
func NewVerifier(jwksURL string) (*Verifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("auth: JWKS URL must not be empty")
	}
	return &Verifier{keys: newJWKSCache(jwksURL)}, nil
}

// Verify checks the token's signature and time claims and returns the user.
// Failures are classified: expired tokens get CodeTokenExpired, everything
// else CodeInvalidToken.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.signingKey(ctx, kid)
	}, jwt.WithValidMethods(validMethods))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return User{}, apperr.Wrap(err, apperr.KindUnauthorized, apperr.CodeTokenExpired,
				"token has expired, please sign in again")
		}
		return User{}, apperr.Wrap(err, apperr.KindUnauthorized, apperr.CodeInvalidToken,
			"invalid token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return User{}, apperr.New(apperr.KindUnauthorized, apperr.CodeInvalidToken,
			"token has no subject claim")
	}
	email, _ := claims["email"].(string)

	return User{ID: sub, Email: email}, nil
}
