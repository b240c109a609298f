package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bithra/platform/internal/auth"
	"github.com/bithra/platform/internal/models"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *auth.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			WriteUnauthorized(w, r, "Invalid email or password")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user logged in", "user_id", user.ID)
	WriteJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}
