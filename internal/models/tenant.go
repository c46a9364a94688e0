package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant records a registered tenant database in the control plane.
// A request naming a database without an active Tenant row is rejected
// before any connection attempt.
type Tenant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:text;not null;uniqueIndex"` // Physical database name.
	DisplayName string `gorm:"type:text"`                      // Human-readable name.

	// No column default: gorm skips zero-valued fields that carry one on
	// Create, which would store a deactivated tenant as active.
	Active bool `gorm:"not null"` // Whether the tenant accepts requests.

	Settings datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Per-tenant feature settings in JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
