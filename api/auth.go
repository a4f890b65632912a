package api

import (
	"fmt"
	"net/http"

	"github.com/StoryBB/StoryBB-sub005/internal/auth"
)

type AuthHandler struct {
	svc          *auth.Service
	cookieName   string
	cookieSecure bool
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(svc *auth.Service, cookieName string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, cookieName: cookieName, cookieSecure: cookieSecure}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decode(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Language == "" {
		req.Language = localeFrom(r.Context())
	}
	req.IP = viewerFrom(r.Context()).IP

	m, err := h.svc.Register(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, "/login", "registered", map[string]any{"member_id": m.ID, "member_name": m.Name})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	sess, m, err := h.svc.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		renderError(w, r, err)
		return
	}
	setSessionCookie(w, h.cookieName, sess.Token, sess.ExpiresAt, h.cookieSecure)
	if wantsHTML(r) {
		done(w, r, fmt.Sprintf("/profile/%d", m.ID), "welcome_back", nil, m.DisplayName())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; dropping the cookie ends a browser session.
	clearSessionCookie(w, h.cookieName)
	done(w, r, "/boards", "logged_out", nil)
}
