package handlers

import (
	"github.com/gin-gonic/gin"
	internalhttp "github.com/opticore-app/opticore/internal/http"
	"github.com/opticore-app/opticore/internal/security"
)

// claimsFromContext extracts verified claims from the gin context.
func claimsFromContext(c *gin.Context) *security.Claims {
	return internalhttp.ClaimsFromContext(c)
}
