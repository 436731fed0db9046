package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for any token that fails verification:
	// bad signature, wrong algorithm, malformed payload or missing subject.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenExpired is wrapped together with ErrInvalidToken when the
	// token's exp claim has passed.
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenIssuer signs and verifies stateless access tokens. The subject is the
// user's email. Nothing is stored server-side, so a token stays valid until
// it expires even after logout.
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewTokenIssuer builds an issuer for an HMAC algorithm name (HS256, HS384
// or HS512) and a shared secret.
func NewTokenIssuer(secret, algorithm string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret is empty")
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", algorithm)
	}

	return &TokenIssuer{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}, nil
}

// Issue signs a token for subject that expires ttl from now.
func (t *TokenIssuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := t.now()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns its subject. Only the configured
// algorithm is accepted and the exp claim is required.
func (t *TokenIssuer) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
