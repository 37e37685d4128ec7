package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
)

// RequireCapability must run after AuthMiddleware.
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		roleName, _ := role.(string)
		if !models.Can(roleName, capability) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", capability))
			c.Abort()
			return
		}

		c.Next()
	}
}

// IsStaff reports whether the request carries a role that may act for the
// restaurant on reservations.
func IsStaff(c *gin.Context) bool {
	_, role, ok := CurrentUser(c)
	return ok && models.Can(role, models.CapReservations)
}
