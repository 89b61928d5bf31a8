package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/auth"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService *auth.Service
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// MessageResponse acknowledges requests that return no resource
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			h.logger.Warn("Login failed", zap.String("email", req.Email))
		}
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserContext(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	if err := h.authService.Logout(r.Context(), userCtx); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserContext(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userCtx.UserID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /api/v1/auth/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserContext(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	var req auth.ProfileUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), userCtx.UserID, &req)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ChangePassword handles POST /api/v1/auth/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserContext(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	var req auth.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ChangePassword(r.Context(), userCtx.UserID, &req); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}
