package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/pinboard/internal/apperror"
	"github.com/sakif/pinboard/internal/auth"
	"github.com/sakif/pinboard/internal/model"
	"github.com/sakif/pinboard/internal/service"
)

// AuthService is what AuthHandler needs from the service layer.
// *service.AuthService satisfies it.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
	Profile(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, in service.UpdateProfileInput) (*model.User, error)
}

// AuthResponse is the success body of every /api/auth endpoint. Token is
// omitted by the profile endpoints.
type AuthResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Token   string            `json:"token,omitempty"`
	User    *model.PublicUser `json:"user"`
}

// AuthHandler serves /api/auth:
//   - HandleRegister      → POST /register
//   - HandleLogin         → POST /login
//   - HandleProfile       → GET  /profile  (behind auth.RequireAuth)
//   - HandleUpdateProfile → PUT  /profile  (behind auth.RequireAuth)
type AuthHandler struct {
	responder
	auth AuthService
}

func NewAuthHandler(svc AuthService, logger *slog.Logger, devMode bool) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger, devMode: devMode},
		auth:      svc,
	}
}

// HandleRegister creates an account and returns it with a session token.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"username", "email", "password", "confirmPassword"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user := res.User.Public()
	h.writeJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "user registered successfully",
		Token:   res.Token,
		User:    &user,
	})
}

// HandleLogin exchanges email and password for a token.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user := res.User.Public()
	h.writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "login successful",
		Token:   res.Token,
		User:    &user,
	})
}

// HandleProfile returns the caller's current record.
//
// HTTP: GET /api/auth/profile
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized(auth.MsgTokenRequired))
		return
	}

	user, err := h.auth.Profile(r.Context(), id.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	public := user.Public()
	h.writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "profile retrieved",
		User:    &public,
	})
}

// HandleUpdateProfile changes avatar, bio and optionally the password.
//
// HTTP: PUT /api/auth/profile
// REQUEST BODY: {"avatar"?, "bio"?, "password"?, "confirmPassword"?}
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperror.Unauthorized(auth.MsgTokenRequired))
		return
	}

	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), id.ID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	public := user.Public()
	h.writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "profile updated",
		User:    &public,
	})
}
