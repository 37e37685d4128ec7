package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		claims, err := claimsFromHeader(authHeader)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// OptionalAuth sets the user when a valid bearer token is present and lets
// anonymous requests through. A present but invalid token is rejected.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		claims, err := claimsFromHeader(authHeader)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func claimsFromHeader(header string) (*utils.CustomClaims, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New("Authorization header must be a bearer token")
	}
	claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil || claims == nil {
		return nil, errors.New("Invalid or expired token")
	}
	if claims.UserID == 0 {
		return nil, errors.New("Invalid user ID in token")
	}
	return claims, nil
}

// CurrentUser returns the authenticated user id and role, if any.
func CurrentUser(c *gin.Context) (uint, string, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return 0, "", false
	}
	userID, ok := id.(uint)
	if !ok {
		return 0, "", false
	}
	return userID, c.GetString(ContextRole), true
}
