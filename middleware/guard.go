package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// RequestIDHeader carries the caller supplied correlation id.
const RequestIDHeader = "X-Request-ID"

type claimsContextKey struct{}

// Validator is the part of Engine used by Guard.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*goIdentity.AccessClaims, error)
}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*goIdentity.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goIdentity.AccessClaims)
	return claims, ok
}

// RequestContext attaches client IP, user agent and correlation id to the
// request context.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goIdentity.WithClientIP(r.Context(), clientIP(r))
		ctx = goIdentity.WithUserAgent(ctx, r.UserAgent())
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = goIdentity.WithCorrelationID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Guard rejects requests without a valid access token. Token and session
// failures answer 401; infrastructure failures answer 503.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				if goIdentity.IsDomain(err) {
					unauthorized(w)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
