// Package authn maps a bearer token presented on an API request to the
// tenant.Tenant it authenticates as. Tokens are signed HS256 JWTs whose
// subject claim names the tenant id; provisioning (issuing a tenant its
// first token) is out of scope here, but IssueToken is provided for
// operator tooling and tests.
package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avenlane/jobqueue/store"
	"github.com/avenlane/jobqueue/tenant"
)

var (
	// ErrInvalidToken is returned for a malformed, expired, or
	// incorrectly signed token, or one whose fingerprint claim does not
	// match the tenant's current CredentialFingerprint.
	ErrInvalidToken = errors.New("authn: invalid token")

	// ErrUnknownTenant is returned when the token's subject does not
	// name a provisioned tenant.
	ErrUnknownTenant = errors.New("authn: unknown tenant")
)

// Authenticator validates bearer tokens against a shared HMAC secret
// and the tenant store.
type Authenticator struct {
	secret []byte
	store  store.Store
}

// New creates an Authenticator. secret signs and verifies every token;
// it must be kept identical across all instances of the API facade
// sharing a store.
func New(secret []byte, s store.Store) *Authenticator {
	return &Authenticator{secret: secret, store: s}
}

// Authenticate parses and verifies tokenString, then resolves its
// subject to a tenant.Tenant. It returns ErrInvalidToken for a bad
// signature, bad claims, or a fingerprint mismatch, and ErrUnknownTenant
// if the subject does not exist.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*tenant.Tenant, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrInvalidToken
	}

	t, err := a.store.GetTenant(ctx, sub)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrUnknownTenant
	}

	if fp, ok := claims["fp"].(string); ok && fp != "" && fp != t.CredentialFingerprint {
		return nil, ErrInvalidToken
	}

	return t, nil
}

// IssueToken signs a token naming t as subject, valid for ttl. Tenant
// provisioning and token issuance happen out-of-band, outside this
// package's scope; IssueToken exists so tests and ad-hoc operator
// scripts can mint a token against the same secret an Authenticator
// verifies with, without a separate signing implementation.
func (a *Authenticator) IssueToken(t *tenant.Tenant, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": t.Id,
		"fp":  t.CredentialFingerprint,
		"iss": "jobqueue",
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
