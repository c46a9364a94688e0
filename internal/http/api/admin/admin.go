package admin

import (
	"github.com/gin-gonic/gin"
	internalhttp "github.com/opticore-app/opticore/internal/http"
	"github.com/opticore-app/opticore/internal/http/api/admin/handlers"
	"github.com/opticore-app/opticore/internal/tenant"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the cross-tenant control plane. Every route
// requires the master role; tenant-scoped admins never reach these handlers.
func RegisterAdminRoutes(r *gin.Engine, conn *gorm.DB, registry *tenant.Registry, provisioner tenant.Provisioner) {
	if r == nil || conn == nil {
		return
	}

	group := r.Group("/v0/admin")
	group.Use(internalhttp.RequireMaster())

	tenantsHandler := handlers.NewTenantsHandler(conn, registry, provisioner)
	group.POST("/tenants", tenantsHandler.Create)
	group.GET("/tenants", tenantsHandler.List)
	group.DELETE("/tenants/:name", tenantsHandler.Delete)
	group.POST("/tenants/sync", tenantsHandler.SyncAll)
	group.POST("/tenants/:name/sync", tenantsHandler.Sync)

	usersHandler := handlers.NewUsersHandler(conn)
	group.POST("/users", usersHandler.Create)
	group.GET("/users", usersHandler.List)
	group.GET("/users/:id", usersHandler.Get)
	group.PUT("/users/:id", usersHandler.Update)
	group.DELETE("/users/:id", usersHandler.Delete)

	grantsHandler := handlers.NewGrantsHandler(conn)
	group.PUT("/users/:id/databases", grantsHandler.Replace)
	group.POST("/users/:id/databases", grantsHandler.Add)
	group.DELETE("/users/:id/databases/:db", grantsHandler.Remove)

	permissionsHandler := handlers.NewPermissionsHandler(conn)
	group.PUT("/users/:id/permissions", permissionsHandler.Replace)
}
