package models

import "time"

// DatabaseAccess binds a user to one tenant database with a role scoped to
// that database. A user may hold any number of grants; the master identity
// holds none, its all-tenant grant set is synthesized at token issuance.
type DatabaseAccess struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_user_database"` // Owning user ID.

	Database string `gorm:"type:text;not null;uniqueIndex:idx_user_database"` // Tenant database name.
	Role     string `gorm:"type:text;not null;default:'user'"`                // Role within that database.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
