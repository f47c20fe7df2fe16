package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/lifecycle"
	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorKey = "actor"

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware validates operator tokens and sets the acting user in the
// context.
func AuthMiddleware(authService service.AuthService, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("auth")
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			log.Debug("missing authorization header", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		actor, err := authService.Authenticate(tokenString)
		if err != nil {
			log.Info("invalid token", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequestLogger logs every request once it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if actor, ok := GetActor(c); ok {
			fields = append(fields, zap.String("actor", actor.ID))
		}
		for _, e := range c.Errors {
			fields = append(fields, zap.NamedError("error", e.Err))
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// GetActor extracts the acting user from gin context
func GetActor(c *gin.Context) (lifecycle.ActingUser, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return lifecycle.ActingUser{}, false
	}
	actor, ok := v.(lifecycle.ActingUser)
	return actor, ok
}

// SetActor stores the acting user, for handler tests.
func SetActor(c *gin.Context, actor lifecycle.ActingUser) {
	c.Set(actorKey, actor)
}

// RequireActor writes 401 when no acting user is in the context.
func RequireActor(c *gin.Context) (lifecycle.ActingUser, bool) {
	actor, ok := GetActor(c)
	if !ok || actor.ID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return lifecycle.ActingUser{}, false
	}
	return actor, true
}
