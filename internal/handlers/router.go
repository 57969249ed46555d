package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Auth    *AuthHandler
	Account *AccountHandler
	Admin   *AdminHandler

	Tokens  *mW.TokenManager
	Revoker *mW.TokenRevoker

	CORSOrigins    []string
	RequestTimeout time.Duration

	// Health reports backing store reachability. Nil means always healthy.
	Health func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestMeta)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", cfg.Auth.Register)
		r.Post("/auth/login", cfg.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware(cfg.Tokens, cfg.Revoker))

			r.Post("/auth/logout", cfg.Auth.Logout)

			r.Get("/accounts/me", cfg.Account.Me)
			r.Get("/accounts/me/transactions", cfg.Account.Transactions)
			r.Get("/accounts/me/activities", cfg.Account.Activities)
			r.Post("/accounts/deposit", cfg.Account.Deposit)
			r.Post("/accounts/withdraw", cfg.Account.Withdraw)
			r.Post("/accounts/transfer", cfg.Account.Transfer)
			r.Put("/accounts/pin", cfg.Account.ChangePIN)

			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleAdministrator))
				r.Put("/accounts/{accountId}/freeze", cfg.Admin.Freeze)
				r.Put("/accounts/{accountId}/unfreeze", cfg.Admin.Unfreeze)
			})
		})
	})

	return r
}
