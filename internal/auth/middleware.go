package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callerKey = "auth.caller"

// Middleware authenticates the bearer token and loads the caller profile.
// Missing or invalid tokens get 401, a missing profile gets 403.
func Middleware(verifier TokenVerifier, profiles ProfileStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ParseBearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		profile, err := profiles.GetProfile(c.Request.Context(), userID)
		if errors.Is(err, ErrProfileNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "profile not found"})
			return
		}
		if err != nil {
			logger.Error("Failed to load profile", zap.Error(err), zap.String("user_id", userID.String()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load profile"})
			return
		}

		c.Set(callerKey, profile.Caller())
		c.Next()
	}
}

// CallerFrom returns the caller set by Middleware
func CallerFrom(c *gin.Context) (Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}
