package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/db"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/tenant"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TenantsHandler administers registered tenant databases.
type TenantsHandler struct {
	db          *gorm.DB
	registry    *tenant.Registry
	provisioner tenant.Provisioner
}

// NewTenantsHandler constructs a TenantsHandler.
func NewTenantsHandler(conn *gorm.DB, registry *tenant.Registry, provisioner tenant.Provisioner) *TenantsHandler {
	return &TenantsHandler{db: conn, registry: registry, provisioner: provisioner}
}

// createTenantRequest defines the request body for tenant creation.
type createTenantRequest struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Settings    map[string]any `json:"settings"`
}

// Create registers a tenant, provisions its physical database and applies
// the tenant schema.
func (h *TenantsHandler) Create(c *gin.Context) {
	var body createTenantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if !tenant.ValidDatabaseName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid database name"})
		return
	}

	var exists models.Tenant
	if errCheck := h.db.WithContext(c.Request.Context()).Where("name = ?", name).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "tenant already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if errProvision := h.provisioner.CreateDatabase(c.Request.Context(), name); errProvision != nil {
		log.WithError(errProvision).Errorf("provision tenant database %s", name)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
		return
	}

	settings := datatypes.JSON([]byte("{}"))
	if body.Settings != nil {
		if encoded, errEncode := encodeSettings(body.Settings); errEncode == nil {
			settings = encoded
		}
	}

	record := models.Tenant{
		Name:        name,
		DisplayName: strings.TrimSpace(body.DisplayName),
		Active:      true,
		Settings:    settings,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create tenant failed"})
		return
	}

	if errSync := h.migrateTenant(c, name); errSync != nil {
		log.WithError(errSync).Errorf("initial schema sync for tenant %s", name)
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           record.ID,
		"name":         record.Name,
		"display_name": record.DisplayName,
	})
}

// List returns all registered tenants with their pool status.
func (h *TenantsHandler) List(c *gin.Context) {
	var tenants []models.Tenant
	if errFind := h.db.WithContext(c.Request.Context()).Order("name ASC").Find(&tenants).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	items := make([]gin.H, 0, len(tenants))
	for _, record := range tenants {
		items = append(items, gin.H{
			"id":           record.ID,
			"name":         record.Name,
			"display_name": record.DisplayName,
			"active":       record.Active,
			"settings":     record.Settings,
			"pool_live":    h.registry.Cached(record.Name),
			"created_at":   record.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tenants": items})
}

// Delete deactivates a tenant, evicts its pool and removes its grants.
// With ?drop=true the physical database is dropped as well.
func (h *TenantsHandler) Delete(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing tenant name"})
		return
	}

	var record models.Tenant
	if errFind := h.db.WithContext(c.Request.Context()).Where("name = ?", name).First(&record).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	h.registry.Evict(name)

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errGrants := tx.Where("database = ?", name).Delete(&models.DatabaseAccess{}).Error; errGrants != nil {
			return errGrants
		}
		return tx.Model(&models.Tenant{}).Where("id = ?", record.ID).
			Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete tenant failed"})
		return
	}

	if c.Query("drop") == "true" {
		if errDrop := h.provisioner.DropDatabase(c.Request.Context(), name); errDrop != nil {
			log.WithError(errDrop).Errorf("drop tenant database %s", name)
			c.JSON(http.StatusOK, gin.H{"ok": true, "dropped": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "dropped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Sync re-applies the tenant schema on one tenant database.
func (h *TenantsHandler) Sync(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	registered, errCheck := h.isActiveTenant(c, name)
	if errCheck != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !registered {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	if errSync := h.migrateTenant(c, name); errSync != nil {
		log.WithError(errSync).Errorf("schema sync for tenant %s", name)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tenant unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SyncAll re-applies the tenant schema on every active tenant, reporting
// per-tenant results instead of stopping at the first failure.
func (h *TenantsHandler) SyncAll(c *gin.Context) {
	var names []string
	if errFind := h.db.WithContext(c.Request.Context()).
		Model(&models.Tenant{}).
		Where("active = ?", true).
		Order("name ASC").
		Pluck("name", &names).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	results := make([]gin.H, 0, len(names))
	for _, name := range names {
		if errSync := h.migrateTenant(c, name); errSync != nil {
			log.WithError(errSync).Errorf("schema sync for tenant %s", name)
			results = append(results, gin.H{"name": name, "ok": false})
			continue
		}
		results = append(results, gin.H{"name": name, "ok": true})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// migrateTenant resolves the tenant pool and applies the registered schema.
func (h *TenantsHandler) migrateTenant(c *gin.Context, name string) error {
	pool, errGet := h.registry.Get(c.Request.Context(), name)
	if errGet != nil {
		return errGet
	}
	return db.MigrateTenant(pool)
}

// isActiveTenant reports whether the name is an active registered tenant.
func (h *TenantsHandler) isActiveTenant(c *gin.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	var count int64
	errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.Tenant{}).
		Where("name = ? AND active = ?", name, true).
		Count(&count).Error
	return count > 0, errCount
}
