// Package middleware protects handlers with RFC 6750 bearer tokens.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type claimsContextKey struct{}

// ErrNoToken is passed to OnError when the request carries no bearer token.
var ErrNoToken = errors.New("bearer token required")

// Bearer wraps another http.Handler, only passing on requests whose bearer
// token verifies. The verified claims are available to the wrapped handler
// through ClaimsFromContext.
type Bearer[C any] struct {
	// Verify checks token and returns its claims.
	Verify func(r *http.Request, token string) (C, error)
	// OnError writes the response for a rejected request. If nil, a 401 with
	// a bearer challenge is sent.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Wrap returns an http.Handler that wraps the given http.Handler.
func (b *Bearer[C]) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := BearerToken(r)
		if !ok {
			b.reject(w, r, ErrNoToken)
			return
		}
		c, err := b.Verify(r, tok)
		if err != nil {
			b.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, c)))
	})
}

func (b *Bearer[C]) reject(w http.ResponseWriter, r *http.Request, err error) {
	if b.OnError != nil {
		b.OnError(w, r, err)
		return
	}
	challenge := "Bearer"
	if !errors.Is(err, ErrNoToken) {
		challenge = `Bearer error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// ClaimsFromContext returns the claims stored by Bearer.Wrap.
func ClaimsFromContext[C any](ctx context.Context) (C, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(C)
	return c, ok
}

// BearerToken returns the access token of an RFC 6750 Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
