package db

import (
	"fmt"
	"sync"

	"github.com/opticore-app/opticore/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the control-plane schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.DatabaseAccess{},
		&models.UserPermission{},
		&models.Tenant{},
		&models.LoginAudit{},
	)
}

// Tenant-side schema registration. Domain packages register their models at
// init time; the control plane migrates the registered set into each tenant
// database on create and on sync.
var (
	tenantModelsMu sync.Mutex
	tenantModels   []any
)

// RegisterTenantModel adds a model to the tenant schema set.
func RegisterTenantModel(model any) {
	if model == nil {
		return
	}
	tenantModelsMu.Lock()
	defer tenantModelsMu.Unlock()
	tenantModels = append(tenantModels, model)
}

// TenantModels returns a copy of the registered tenant schema set.
func TenantModels() []any {
	tenantModelsMu.Lock()
	defer tenantModelsMu.Unlock()
	out := make([]any, len(tenantModels))
	copy(out, tenantModels)
	return out
}

// MigrateTenant creates or updates the registered tenant schema on one
// tenant connection.
func MigrateTenant(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	registered := TenantModels()
	if len(registered) == 0 {
		return nil
	}
	return conn.AutoMigrate(registered...)
}
