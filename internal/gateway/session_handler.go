package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/chibi-storefront/internal/auth"
	"github.com/fjod/chibi-storefront/internal/domain"
)

type SessionHandler struct {
	auth    *auth.Manager
	timeout time.Duration
}

func NewSessionHandler(a *auth.Manager, timeout time.Duration) *SessionHandler {
	return &SessionHandler{auth: a, timeout: timeout}
}

type SessionResponse struct {
	Authenticated  bool         `json:"authenticated"`
	IsAdmin        bool         `json:"is_admin"`
	User           *domain.User `json:"user,omitempty"`
	TokenExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	Error          string       `json:"error,omitempty"`
}

type LoginRequestDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequestDTO struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

type GoogleLoginRequestDTO struct {
	Token string `json:"token"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "username and password are required")
		return
	}
	if err := h.auth.Login(ctx, req.Username, req.Password); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.auth.Register(ctx, auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Confirm:  req.Password2,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.view())
}

func (h *SessionHandler) Google(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req GoogleLoginRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "token is required")
		return
	}
	if err := h.auth.LoginWithGoogle(ctx, req.Token); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.auth.Logout(ctx, auth.LogoutOptions{NotifyServer: true})
	respondJSON(w, http.StatusOK, h.view())
}

func (h *SessionHandler) view() SessionResponse {
	resp := SessionResponse{
		Authenticated: h.auth.IsAuthenticated(),
		IsAdmin:       h.auth.IsAdmin(),
		User:          h.auth.User(),
		Error:         h.auth.LastError(),
	}
	if exp, ok := h.auth.TokenExpiry(); ok {
		resp.TokenExpiresAt = &exp
	}
	return resp
}
