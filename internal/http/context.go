package http

import (
	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/security"
	"gorm.io/gorm"
)

// Well-known gin context keys.
const (
	// ClaimsContextKey carries the verified token claims.
	ClaimsContextKey = "authClaims"
	// TenantDBContextKey carries the resolved tenant connection.
	TenantDBContextKey = "tenantDB"
)

// ClaimsFromContext returns the verified claims attached by the auth
// middleware, or nil for unauthenticated requests.
func ClaimsFromContext(c *gin.Context) *security.Claims {
	value, exists := c.Get(ClaimsContextKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*security.Claims)
	if !ok {
		return nil
	}
	return claims
}

// TenantDB returns the tenant connection resolved for this request. Domain
// controllers read it here and never construct their own.
func TenantDB(c *gin.Context) *gorm.DB {
	value, exists := c.Get(TenantDBContextKey)
	if !exists {
		return nil
	}
	conn, ok := value.(*gorm.DB)
	if !ok {
		return nil
	}
	return conn
}
