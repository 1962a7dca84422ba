package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"diary-client/internal/service"
)

// NewRouter arma el backend de desarrollo con el contrato /auth que consume el cliente.
func NewRouter(logger *zap.Logger, authH *AuthHandler, jwtSvc *service.JWTService) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestLogger(logger), recoverJSON(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	auth.POST("/login", authH.Login)
	auth.GET("/me", JWTAuthMiddleware(jwtSvc), authH.Me)
	auth.POST("/logout", authH.Logout)

	return r
}

// requestLogger registra cada request; los 5xx suben a Error.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status == http.StatusTooManyRequests:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// recoverJSON responde con el mismo formato {"message"} que el resto de errores.
func recoverJSON(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		logger.Error("handler panic", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	})
}
