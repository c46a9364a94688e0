package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/store"
	log "github.com/sirupsen/logrus"
)

// RequireAuth rejects requests that carry no verified claims.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ClaimsFromContext(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role ranks below the minimum.
// Role order: user < admin < master.
func RequireRole(min string) gin.HandlerFunc {
	minRank := models.RoleRank(min)
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if models.RoleRank(claims.Role) < minRank {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireMaster gates the cross-tenant control plane.
func RequireMaster() gin.HandlerFunc {
	return RequireRole(models.RoleMaster)
}

// RequirePermission enforces a fine-grained (resource, action) grant for
// user-role callers. Admin and master bypass the permission table
// unconditionally.
func RequirePermission(permissions store.PermissionStore, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if claims.Role == models.RoleAdmin || claims.Role == models.RoleMaster {
			c.Next()
			return
		}

		granted, errCheck := permissions.HasPermission(c.Request.Context(), claims.UserID, resource, action)
		if errCheck != nil {
			log.WithError(errCheck).Error("permission lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "permission check failed"})
			return
		}
		if !granted {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
