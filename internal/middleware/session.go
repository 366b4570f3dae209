package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pulseboard/device-service/internal/service"
	"github.com/pulseboard/device-service/internal/util"
)

type ctxKey int

const ctxSessionClaimsKey ctxKey = iota + 1

// ClaimsFromContext returns the session claims attached by SessionAuth.
func ClaimsFromContext(ctx context.Context) (*util.SessionClaims, bool) {
	v := ctx.Value(ctxSessionClaimsKey)
	if v == nil {
		return nil, false
	}
	claims, ok := v.(*util.SessionClaims)
	return claims, ok
}

// SessionAuth requires a valid, unrevoked bearer token and attaches its
// claims to the request context.
func SessionAuth(sessions *service.SessionService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := sessions.Validate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxSessionClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
