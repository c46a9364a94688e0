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

// GrantsHandler administers user-to-tenant database grants.
type GrantsHandler struct {
	db *gorm.DB
}

// NewGrantsHandler constructs a GrantsHandler.
func NewGrantsHandler(conn *gorm.DB) *GrantsHandler {
	return &GrantsHandler{db: conn}
}

// grantEntry is one database grant in request bodies.
type grantEntry struct {
	Database string `json:"db_name"`
	Role     string `json:"rol"`
}

// replaceGrantsRequest defines the request body for grant replacement.
type replaceGrantsRequest struct {
	Databases []grantEntry `json:"databases"`
}

// Replace swaps a user's entire grant set. Each named database must be an
// active registered tenant; grant changes take effect when the user next
// obtains a token.
func (h *GrantsHandler) Replace(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var body replaceGrantsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entries, errValidate := h.validateEntries(c, body.Databases)
	if errValidate != nil {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.DatabaseAccess{}).Error; errDelete != nil {
			return errDelete
		}
		for _, entry := range entries {
			grant := models.DatabaseAccess{UserID: userID, Database: entry.Database, Role: entry.Role}
			if errCreate := tx.Create(&grant).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replace grants failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Add creates a single grant for a user.
func (h *GrantsHandler) Add(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var body grantEntry
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entries, errValidate := h.validateEntries(c, []grantEntry{body})
	if errValidate != nil {
		return
	}
	entry := entries[0]

	var exists models.DatabaseAccess
	if errCheck := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND database = ?", userID, entry.Database).
		First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "grant already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	grant := models.DatabaseAccess{UserID: userID, Database: entry.Database, Role: entry.Role}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&grant).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create grant failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// Remove deletes a single grant.
func (h *GrantsHandler) Remove(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	database := strings.TrimSpace(c.Param("db"))
	if database == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing database"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND database = ?", userID, database).
		Delete(&models.DatabaseAccess{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete grant failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "grant not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// userID parses and verifies the :id route parameter.
func (h *GrantsHandler) userID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	var count int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", id).
		Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return 0, false
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return 0, false
	}
	return id, true
}

// validateEntries normalizes grant entries and checks every database is an
// active registered tenant. It writes the error response itself on failure.
func (h *GrantsHandler) validateEntries(c *gin.Context, entries []grantEntry) ([]grantEntry, error) {
	out := make([]grantEntry, 0, len(entries))
	seen := map[string]struct{}{}
	for _, entry := range entries {
		database := strings.TrimSpace(entry.Database)
		role := strings.TrimSpace(entry.Role)
		if role == "" {
			role = models.RoleUser
		}
		if database == "" || (role != models.RoleUser && role != models.RoleAdmin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant"})
			return nil, errors.New("invalid grant")
		}
		if _, dup := seen[database]; dup {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate database"})
			return nil, errors.New("duplicate database")
		}
		seen[database] = struct{}{}

		var count int64
		if errCount := h.db.WithContext(c.Request.Context()).
			Model(&models.Tenant{}).
			Where("name = ? AND active = ?", database, true).
			Count(&count).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return nil, errCount
		}
		if count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return nil, errors.New("tenant not found")
		}
		out = append(out, grantEntry{Database: database, Role: role})
	}
	return out, nil
}
