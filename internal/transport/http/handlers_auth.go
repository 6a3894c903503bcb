package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"frametruth/internal/auth"
	"frametruth/pkg/platform/httputil"
	"frametruth/pkg/requestcontext"
)

// AuthHandler wires account endpoints to the auth service.
type AuthHandler struct {
	service *auth.Service
	logger  *slog.Logger
}

func NewAuthHandler(service *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// RegisterPublic mounts the endpoints reachable without a token.
func (h *AuthHandler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
}

// RegisterProtected mounts the endpoints that require an authenticated actor.
func (h *AuthHandler) RegisterProtected(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[registerRequest](w, r)
	if !ok {
		return
	}

	user, err := h.service.Register(ctx, req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user registered",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", user.ID.String(),
	)
	httputil.WriteData(w, http.StatusCreated, "account created", fromUser(user))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeJSON[loginRequest](w, r)
	if !ok {
		return
	}

	session, accessToken, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", session.UserID.String(),
	)
	httputil.WriteData(w, http.StatusOK, "login successful", loginResponse{
		AccessToken: accessToken,
		SessionID:   session.ID.String(),
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.service.Logout(ctx, requestcontext.ActorID(ctx), requestcontext.SessionID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, "logged out", nil)
}
