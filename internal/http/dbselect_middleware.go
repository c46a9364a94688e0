package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/tenant"
	log "github.com/sirupsen/logrus"
)

// TenantChecker answers whether a database name belongs to an active
// registered tenant.
type TenantChecker interface {
	IsRegisteredTenant(ctx context.Context, name string) (bool, error)
}

// SelectDatabaseMiddleware resolves the request's tenant connection and
// attaches it to the context. It runs after token verification and performs
// no authorization of its own: unauthenticated requests get the default
// pool, authenticated requests get the database selected in their claims,
// optionally overridden by the X-Database header when the override is within
// the caller's grants.
func SelectDatabaseMiddleware(registry *tenant.Registry, tenants TenantChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			pool, errGet := registry.GetDefault(c.Request.Context())
			if errGet != nil {
				log.WithError(errGet).Error("resolve default tenant pool")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
				return
			}
			c.Set(TenantDBContextKey, pool)
			c.Next()
			return
		}

		name := strings.TrimSpace(claims.CurrentDatabase)
		if override := strings.TrimSpace(c.GetHeader("X-Database")); override != "" {
			if !claims.HasDatabase(override) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			name = override
		}
		if name == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no database selected"})
			return
		}

		registered, errCheck := tenants.IsRegisteredTenant(c.Request.Context(), name)
		if errCheck != nil {
			log.WithError(errCheck).Error("tenant registration lookup")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant lookup failed"})
			return
		}
		if !registered {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}

		pool, errGet := registry.Get(c.Request.Context(), name)
		if errGet != nil {
			if errors.Is(errGet, tenant.ErrTenantUnavailable) || errors.Is(errGet, tenant.ErrRegistryClosed) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
				return
			}
			log.WithError(errGet).Errorf("resolve tenant pool %s", name)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
			return
		}

		c.Set(TenantDBContextKey, pool)
		c.Next()
	}
}
