// Package api is casepilot's HTTP surface: the `/api/v1` routes spec.md §6
// names, backed directly by the internal pipeline packages. Authentication
// itself is out of scope (spec.md §1: "the pipeline consumes an
// authenticated operator identity") — this file verifies the bearer
// token's HS256 signature against the shared secret and maps its subject
// claim to that identity, grounded on rpc/http.go's HS256 jwtVerifier,
// trimmed to the single algorithm and claim this service needs.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyOperator contextKey = "casepilot_operator_id"

// Authenticator verifies the bearer token on every request and extracts the
// operator identity the pipeline runs as.
type Authenticator struct {
	secret    []byte
	roleClaim string
	now       func() time.Time
}

// NewAuthenticator builds an Authenticator from an HS256 shared secret.
func NewAuthenticator(secret string, roleClaim string) *Authenticator {
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Authenticator{secret: []byte(secret), roleClaim: roleClaim, now: time.Now}
}

// Middleware rejects requests with a missing or invalid bearer token and
// stashes the operator id (the token's subject claim) in the request
// context for handlers to read via OperatorID.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" || tokenStr == header {
			writeError(w, errNotAuthenticated)
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, errors.New("unexpected signing method")
			}
			return a.secret, nil
		}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(func() time.Time { return a.now() }))
		if err != nil || claims.Subject == "" {
			writeError(w, errNotAuthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyOperator, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorID reads the authenticated operator id stashed by Middleware.
func OperatorID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyOperator).(string)
	return id
}
