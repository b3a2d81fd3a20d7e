package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mtehis/internal/service"
)

// AuthHandler handles admin registration and login.
type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register bootstraps the admin account. Only works while no users exist.
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.authService.RegisterAdmin(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			respondError(c, http.StatusConflict, "admin account already exists")
			return
		}
		h.logger.Error("Failed to register admin", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to register admin")
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"username": user.Username, "role": user.Role})
}

// Login verifies credentials and issues a JWT.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	token, expiresAt, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.logger.Error("Failed to log in", zap.Error(err), zap.String("username", req.Username))
		respondError(c, http.StatusInternalServerError, "failed to log in")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}
