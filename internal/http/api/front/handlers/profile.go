package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/store"
)

// ProfileHandler serves the calling identity's own data.
type ProfileHandler struct {
	store *store.GormStore
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(st *store.GormStore) *ProfileHandler {
	return &ProfileHandler{store: st}
}

// Me echoes the verified claims plus stored profile data for stored users.
func (h *ProfileHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	response := gin.H{
		"user_id":          claims.UserID,
		"username":         claims.Username,
		"role":             claims.Role,
		"databases":        claims.Databases,
		"current_database": claims.CurrentDatabase,
	}

	if claims.Role != models.RoleMaster {
		user, errFind := h.store.FindByUsername(c.Request.Context(), claims.Username)
		if errFind == nil {
			response["last_login_at"] = user.LastLoginAt
			response["created_at"] = user.CreatedAt
		} else if !errors.Is(errFind, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
	}

	c.JSON(http.StatusOK, response)
}
