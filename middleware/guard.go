// Package middleware provides HTTP middleware for protecting routes with the
// auth engine.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/finvault/authd"
	tokens "github.com/finvault/authd/jwt"
)

type principalContextKey struct{}

// Principal is the verified identity attached to the request context by
// Guard.
type Principal struct {
	Kind   tokens.Kind
	Claims *tokens.Claims
}

// PrincipalFromContext returns the verified principal attached by Guard.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

// Guard rejects requests without a verifiable bearer token. Use KindUser or
// KindClient to pin the route to one principal kind; KindAny accepts either.
func Guard(engine *authd.Engine, kind Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, principalKind, err := engine.ValidateAccess(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !kind.accepts(principalKind) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, &Principal{
				Kind:   principalKind,
				Claims: claims,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Kind restricts which principal kinds a guarded route accepts.
type Kind int

const (
	// KindAny accepts user and client tokens alike.
	KindAny Kind = iota
	// KindUser accepts only user tokens.
	KindUser
	// KindClient accepts only client tokens.
	KindClient
)

func (k Kind) accepts(principal tokens.Kind) bool {
	switch k {
	case KindUser:
		return principal == tokens.KindUser
	case KindClient:
		return principal == tokens.KindClient
	default:
		return true
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
