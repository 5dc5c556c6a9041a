package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/postcraft/internal/apperr"
)

const oauthCookieTTL = 300

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if s.social == nil {
		respondError(w, apperr.NotFound("httpapi.auth", "social login is not configured"))
		return
	}
	login, err := s.social.Login(chi.URLParam(r, "platform"))
	if err != nil {
		respondError(w, err)
		return
	}
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	setOAuthCookie(w, "oauth_state", login.State, secure)
	if login.Verifier != "" {
		setOAuthCookie(w, "oauth_verifier", login.Verifier, secure)
	}
	http.Redirect(w, r, login.URL, http.StatusFound)
}

func setOAuthCookie(w http.ResponseWriter, name, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/v1/auth/",
		MaxAge:   oauthCookieTTL,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
