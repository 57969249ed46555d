package middleware

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware requires a valid, unrevoked Bearer token and stores its
// claims in the request context.
func AuthMiddleware(tokens *TokenManager, revoker *TokenRevoker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			claims, err := tokens.Parse(parts[1])
			if err != nil {
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				log.Printf("[AUTH] revocation check failed: %v", err)
				services.SendErrorResponse(w, "Unable to verify token", http.StatusServiceUnavailable, nil)
				return
			}
			if revoked {
				services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the claims stored by AuthMiddleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// AccountIDFrom returns the authenticated account ID.
func AccountIDFrom(ctx context.Context) (int64, bool) {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return 0, false
	}
	return claims.AccountID, true
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			if claims.Role != role {
				log.Printf("[AUTH] account %d denied %s %s", claims.AccountID, r.Method, r.URL.Path)
				services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestMeta copies the client address and user agent into the context for
// the activity log. Run it after chi's RealIP.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := services.WithRequestMeta(r.Context(), services.RequestMeta{
			IPAddress: ip,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
