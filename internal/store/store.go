package store

import (
	"context"
	"errors"
	"time"

	"github.com/opticore-app/opticore/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CredentialStore is the read surface the auth core consumes. The only write
// is RecordLogin; all other mutation belongs to the admin control plane.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ListDatabaseAccess(ctx context.Context, userID uint64) ([]models.DatabaseAccess, error)
	ListTenantDatabases(ctx context.Context) ([]string, error)
	RecordLogin(ctx context.Context, userID uint64, at time.Time) error
}

// PermissionStore answers fine-grained permission checks for user-role callers.
type PermissionStore interface {
	HasPermission(ctx context.Context, userID uint64, resource, action string) (bool, error)
}

// GormStore implements the store interfaces over the control-plane database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindByUsername returns the user with the given login name.
func (s *GormStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errFind
	}
	return &user, nil
}

// ListDatabaseAccess returns all tenant database grants for a user.
func (s *GormStore) ListDatabaseAccess(ctx context.Context, userID uint64) ([]models.DatabaseAccess, error) {
	var grants []models.DatabaseAccess
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("database ASC").
		Find(&grants).Error; errFind != nil {
		return nil, errFind
	}
	return grants, nil
}

// ListTenantDatabases returns the names of all active registered tenants.
func (s *GormStore) ListTenantDatabases(ctx context.Context) ([]string, error) {
	var names []string
	if errFind := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("active = ?", true).
		Order("name ASC").
		Pluck("name", &names).Error; errFind != nil {
		return nil, errFind
	}
	return names, nil
}

// IsRegisteredTenant reports whether the name belongs to an active tenant.
func (s *GormStore) IsRegisteredTenant(ctx context.Context, name string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("name = ? AND active = ?", name, true).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// UpdatePassword replaces a user's stored credential hash.
func (s *GormStore) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hash).Error
}

// RecordLogin stamps the user's last successful login.
func (s *GormStore) RecordLogin(ctx context.Context, userID uint64, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at.UTC()).Error
}

// HasPermission reports whether the user holds the (resource, action) grant.
func (s *GormStore) HasPermission(ctx context.Context, userID uint64, resource, action string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.UserPermission{}).
		Where("user_id = ? AND resource = ? AND action = ?", userID, resource, action).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// AuditLogin appends a login attempt record. Audit failures are reported to
// the caller for logging but never block authentication.
func (s *GormStore) AuditLogin(ctx context.Context, userID *uint64, username string, success bool, remote string) error {
	entry := models.LoginAudit{
		UserID:   userID,
		Username: username,
		Success:  success,
		Remote:   remote,
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}
