package middleware

import (
	"net/http"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/config"
	"github.com/mtgscribe/gateway/models"
	"github.com/mtgscribe/gateway/sessionmgr"
)

// SessionCookieReader resolves the caller's session, attaching the
// principal to the request context when a valid session cookie is
// present. This is admission-chain step 2: it never rejects by itself
// — RequireAuth/RequireTier do that once the principal is known.
type SessionCookieReader struct {
	sessions *sessionmgr.Manager
	cfg      *config.Config
}

func NewSessionCookieReader(sessions *sessionmgr.Manager, cfg *config.Config) *SessionCookieReader {
	return &SessionCookieReader{sessions: sessions, cfg: cfg}
}

func (s *SessionCookieReader) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.SessionCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := s.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil || p == nil {
			next.ServeHTTP(w, r)
			return
		}
		// The session's KV-side TTL just rolled forward in Resolve; the
		// cookie's own MaxAge is reissued alongside it so the browser's
		// expiry tracks the server's.
		http.SetCookie(w, &http.Cookie{
			Name:     s.cfg.SessionCookie,
			Value:    cookie.Value,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.IsProduction(),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(sessionmgr.SessionTTL.Seconds()),
		})
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// RequireAuth rejects with 401 unless a session was resolved.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuth is a no-op filter documenting that a route accepts both
// authenticated and anonymous callers; EffectiveTier already defaults
// to anonymous when no principal is present.
func OptionalAuth(next http.Handler) http.Handler { return next }

// RequireTier rejects with 403 unless the resolved principal's tier
// meets or exceeds min.
func RequireTier(min models.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !EffectiveTier(r.Context()).AtLeast(min) {
				WriteError(w, apierr.New(apierr.KindInsufficientTier, "this feature requires a higher tier"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
