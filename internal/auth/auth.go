// Package auth validates bearer JWTs presented to cmd/batchd's HTTP API.
// It deliberately has no concept of users, tenants, or API keys: the
// batching engine has no multi-tenant model, so authentication here is
// reduced to "does this caller hold a token signed by us".
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingBearerToken is returned when a request carries no
// Authorization: Bearer header.
var ErrMissingBearerToken = errors.New("auth: missing bearer token")

// Claims identifies the caller a validated token was issued to. It
// carries none of the tenant/account fields a multi-tenant system would
// need, since this service has no such concept.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Validator checks bearer tokens against a single shared signing key.
type Validator struct {
	signingKey []byte
	issuer     string
}

// NewValidator builds a Validator. signingKey must not be empty.
func NewValidator(signingKey []byte, issuer string) (*Validator, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("auth: signing key must not be empty")
	}
	return &Validator{signingKey: signingKey, issuer: issuer}, nil
}

// Issue mints a bearer token for subject, valid for ttl. Mainly useful
// for tests and local tooling; production tokens are expected to come
// from whatever issues them upstream of this service.
func (v *Validator) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies raw, returning its claims if the
// signature, expiry, and issuer all check out.
func (v *Validator) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: token invalid")
	}
	return claims, nil
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingBearerToken
	}
	return strings.TrimPrefix(header, prefix), nil
}

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// ClaimsFromContext returns the Claims stored by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// Middleware rejects requests lacking a valid bearer token and, for
// those that pass, stores the validated Claims in the request context.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := v.Validate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
