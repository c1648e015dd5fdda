package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const expectedAudience = "authenticated"

// TokenClaims mirrors the claims issued by the identity provider for
// end-user access tokens.
type TokenClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed access tokens against the shared
// project secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	clock    func() time.Time
}

// JWTOption customises JWTVerifier instances.
type JWTOption func(*JWTVerifier)

// WithAudience overrides the audience expected on verified tokens.
func WithAudience(aud string) JWTOption {
	return func(v *JWTVerifier) {
		aud = strings.TrimSpace(aud)
		if aud != "" {
			v.audience = aud
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(clock func() time.Time) JWTOption {
	return func(v *JWTVerifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewJWTVerifier constructs a verifier for the given shared secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	verifier := &JWTVerifier{
		secret:   []byte(secret),
		audience: expectedAudience,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// VerifyAccessToken parses and validates the access token, returning its claims.
func (v *JWTVerifier) VerifyAccessToken(_ context.Context, tokenStr string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("auth: jwt verifier not initialised")
	}

	claims := &TokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	)

	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	for _, aud := range audience {
		if strings.EqualFold(strings.TrimSpace(aud), expected) {
			return true
		}
	}
	return false
}
