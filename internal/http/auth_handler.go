package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"diary-client/internal/service"
)

// AuthHandler expone el contrato de autenticacion que consume el cliente.
type AuthHandler struct {
	logger *zap.Logger
	users  *service.UserDirectory
	jwt    *service.JWTService
	// nil desactiva el limite de intentos
	limiter service.LoginRateLimiter
}

func NewAuthHandler(logger *zap.Logger, users *service.UserDirectory, jwtSvc *service.JWTService, limiter service.LoginRateLimiter) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:  logger,
		users:   users,
		jwt:     jwtSvc,
		limiter: limiter,
	}
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.Email) {
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many login attempts. Try again later."})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		case errors.Is(err, service.ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{"message": "Account is disabled"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not login"})
		}
		return
	}

	token, err := h.jwt.IssueAccessToken(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout maneja POST /auth/logout. Siempre responde 204.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, ok := bearerToken(c); ok {
		if err := h.jwt.Revoke(token); err != nil {
			h.logger.Debug("logout with unusable token", zap.Error(err))
		}
	}
	c.Status(http.StatusNoContent)
}
