package models

import "time"

// Role names ordered by privilege. RoleMaster is never stored: the master
// identity is a configured credential pair, not a row.
const (
	// RoleUser is the tenant-scoped, permission-gated role.
	RoleUser = "user"
	// RoleAdmin has full access within assigned tenants.
	RoleAdmin = "admin"
	// RoleMaster has cross-tenant access and administers the control plane.
	RoleMaster = "master"
)

// RoleRank returns the privilege rank of a role name, or -1 when unknown.
func RoleRank(role string) int {
	switch role {
	case RoleUser:
		return 0
	case RoleAdmin:
		return 1
	case RoleMaster:
		return 2
	default:
		return -1
	}
}

// User represents an account stored in the control-plane database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role string `gorm:"type:text;not null;default:'user'"` // Base role: user or admin.

	// No column default: gorm skips zero-valued fields that carry one on
	// Create, which would store a disabled account as active.
	Active bool `gorm:"not null"` // Whether the user can sign in.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for MFA, empty when not enrolled.

	Databases   []DatabaseAccess `gorm:"foreignKey:UserID"` // Tenant database grants.
	Permissions []UserPermission `gorm:"foreignKey:UserID"` // Fine-grained permission grants.

	LastLoginAt *time.Time `gorm:"type:timestamp"` // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
