// Package router wires the admission chain and the HTTP surface
// together: chi mounts every route, and each route composes exactly
// the admission-chain filters spec §4.3 names for it, in the
// documented order.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mtgscribe/gateway/config"
	"github.com/mtgscribe/gateway/handler"
	gwmw "github.com/mtgscribe/gateway/middleware"
	"github.com/mtgscribe/gateway/observability"
)

// Deps bundles every handler the router mounts. Built once in main and
// passed in whole, rather than threaded through a dozen constructor
// parameters.
type Deps struct {
	Auth          *handler.AuthHandler
	Chat          *handler.ChatHandler
	Conversations *handler.ConversationHandler
	Health        *handler.HealthHandler
	Sessions      *gwmw.SessionCookieReader
	RateLimit     *gwmw.RateLimiter
	Metrics       *observability.Metrics
}

// New returns a configured chi Router with the global middleware,
// admission chain, and every route mounted.
func New(cfg *config.Config, logger zerolog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(gwmw.CORS(cfg.CORSOrigin))
	r.Use(gwmw.SecurityHeaders)
	r.Use(gwmw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(gwmw.RequestTimeout(cfg.DefaultTimeout, logger))
	r.Use(maxBodySize(cfg.MaxBodyBytes))

	r.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimit.IPLimiter, gwmw.ValidateAuthBody).Post("/register", deps.Auth.Register)
		r.With(deps.RateLimit.IPLimiter, gwmw.ValidateAuthBody).Post("/login", deps.Auth.Login)
		r.With(deps.Sessions.Resolve).Post("/logout", deps.Auth.Logout)
		r.With(deps.Sessions.Resolve, gwmw.RequireAuth).Get("/me", deps.Auth.Me)
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(deps.RateLimit.IPLimiter)
		r.Use(deps.Sessions.Resolve)

		r.With(
			deps.RateLimit.TierRequestQuota,
			deps.RateLimit.TokenBudget,
			deps.RateLimit.GlobalBudgetGate,
			gwmw.ValidateChatBody,
		).Post("/", deps.Chat.Chat)

		r.With(gwmw.RequireAuth).Get("/history", deps.Chat.History)
		r.With(gwmw.RequireAuth).Get("/stats", deps.Chat.Stats)
	})

	r.Route("/api/conversations", func(r chi.Router) {
		r.Use(deps.Sessions.Resolve)
		r.Use(gwmw.RequireAuth)

		r.Get("/", deps.Conversations.List)
		r.Get("/{id}", deps.Conversations.Get)
		r.Patch("/{id}", deps.Conversations.Update)
		r.Delete("/{id}", deps.Conversations.Delete)
	})

	return r
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", gwmw.RequestIDFromContext(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
