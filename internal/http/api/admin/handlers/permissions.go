package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/models"
	"gorm.io/gorm"
)

// PermissionsHandler administers fine-grained permission grants for
// user-role accounts.
type PermissionsHandler struct {
	db *gorm.DB
}

// NewPermissionsHandler constructs a PermissionsHandler.
func NewPermissionsHandler(conn *gorm.DB) *PermissionsHandler {
	return &PermissionsHandler{db: conn}
}

// permissionEntry is one (resource, action) pair in request bodies.
type permissionEntry struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// replacePermissionsRequest defines the request body for permission
// replacement.
type replacePermissionsRequest struct {
	Permissions []permissionEntry `json:"permissions"`
}

// Replace swaps a user's entire permission set. Changes take effect for
// tokens issued after the swap; already-issued tokens keep the behavior
// they were issued with until they expire.
func (h *PermissionsHandler) Replace(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var body replacePermissionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entries := make([]permissionEntry, 0, len(body.Permissions))
	seen := map[string]struct{}{}
	for _, entry := range body.Permissions {
		resource := strings.TrimSpace(entry.Resource)
		action := strings.TrimSpace(entry.Action)
		if resource == "" || action == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permission"})
			return
		}
		key := resource + ":" + action
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, permissionEntry{Resource: resource, Action: action})
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("user_id = ?", id).Delete(&models.UserPermission{}).Error; errDelete != nil {
			return errDelete
		}
		for _, entry := range entries {
			permission := models.UserPermission{UserID: id, Resource: entry.Resource, Action: entry.Action}
			if errCreate := tx.Create(&permission).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replace permissions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
