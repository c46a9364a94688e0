package models

import "time"

// UserPermission grants a user-role account one (resource, action) pair,
// e.g. ("facturas", "delete"). Admin and master bypass these checks.
type UserPermission struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_user_resource_action"` // Owning user ID.

	Resource string `gorm:"type:text;not null;uniqueIndex:idx_user_resource_action"` // Resource name.
	Action   string `gorm:"type:text;not null;uniqueIndex:idx_user_resource_action"` // Action name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
