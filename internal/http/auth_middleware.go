package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/security"
)

// TokenDenyList answers whether a verified token has been revoked, either by
// its id or by a per-user issued-before watermark.
type TokenDenyList interface {
	IsRevoked(ctx context.Context, jti string, userID uint64, issuedAt time.Time) bool
}

// AuthMiddleware verifies the bearer token and attaches its claims to the
// request context. Requests without an Authorization header pass through
// unauthenticated; public endpoints are valid without a token, and the gates
// in this package reject unauthenticated access where it matters. A token
// that is presented but fails verification always aborts. revocations may be
// nil, which keeps verification purely stateless.
func AuthMiddleware(jwtSecret string, revocations TokenDenyList) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, errParse := security.ParseToken(jwtSecret, token)
		if errParse != nil {
			message := "invalid token"
			if errParse == security.ErrExpiredToken {
				message = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		if revocations != nil {
			var issuedAt time.Time
			if claims.IssuedAt != nil {
				issuedAt = claims.IssuedAt.Time
			}
			if revocations.IsRevoked(c.Request.Context(), claims.ID, claims.UserID, issuedAt) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		c.Set(ClaimsContextKey, claims)
		c.Next()
	}
}
