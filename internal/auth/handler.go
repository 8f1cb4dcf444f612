package auth

import (
	"net/http"
	"time"

	"lv-tradedesk/internal/httputil"

	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	cookie string
	secure bool
	log    *zap.Logger
}

// NewHandler sets the session cookie named cookie; secure marks it for
// HTTPS only.
func NewHandler(svc *Service, cookie string, secure bool, log *zap.Logger) *Handler {
	return &Handler{svc: svc, cookie: cookie, secure: secure, log: log}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) setSession(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	s, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	h.setSession(w, s)
	httputil.WriteJSON(w, http.StatusCreated, s)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	s, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	h.setSession(w, s)
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request, userID string) {
	u, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}
