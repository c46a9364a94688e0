package models

import "time"

// LoginAudit records a login attempt against the control plane.
type LoginAudit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   *uint64 `gorm:"index"`                // User ID when the username matched a row.
	Username string  `gorm:"type:text;not null"`   // Username as presented.
	Success  bool    `gorm:"not null"`             // Whether authentication succeeded.
	Remote   string  `gorm:"type:text"`            // Remote address.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Attempt timestamp.
}
