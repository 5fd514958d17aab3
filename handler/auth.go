package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/config"
	gwmw "github.com/mtgscribe/gateway/middleware"
	"github.com/mtgscribe/gateway/models"
	"github.com/mtgscribe/gateway/sessionmgr"
)

// AuthHandler implements register/login/logout/me.
type AuthHandler struct {
	sessions *sessionmgr.Manager
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewAuthHandler(sessions *sessionmgr.Manager, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, cfg: cfg, logger: logger.With().Str("component", "auth-handler").Logger()}
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Tier          models.Tier `json:"tier"`
	EmailVerified bool        `json:"emailVerified"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionmgr.SessionTTL.Seconds()),
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gwmw.WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}

	token, principal, err := h.sessions.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	gwmw.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"user": userView{ID: principal.UserID, Email: principal.Email, Tier: principal.Tier},
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gwmw.WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}

	token, principal, err := h.sessions.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user": userView{ID: principal.UserID, Email: principal.Email, Tier: principal.Tier},
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cfg.SessionCookie)
	if err == nil {
		if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn().Err(err).Msg("logout: failed to destroy session")
		}
	}
	h.clearSessionCookie(w)
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Me handles GET /api/auth/me. RequireAuth already guarantees a
// principal is present in the request context.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := gwmw.PrincipalFromContext(r.Context())
	if p == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user": userView{ID: p.UserID, Email: p.Email, Tier: p.Tier},
	})
}

// writeOrchestratorError unwraps a *apierr.Error if that's what err is,
// falling back to a generic internal error otherwise.
func writeOrchestratorError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		gwmw.WriteError(w, apiErr)
		return
	}
	gwmw.WriteError(w, apierr.Internal(err))
}
