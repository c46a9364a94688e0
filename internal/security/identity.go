package security

import (
	"crypto/subtle"

	"github.com/opticore-app/opticore/internal/models"
)

// identityKind tags the two ways an identity can exist.
type identityKind int

const (
	kindStoredUser identityKind = iota
	kindConfiguredSuperuser
)

// Identity is an authenticated principal. It is either a stored user row or
// the configured superuser; the tag keeps master-only logic (full-grant
// synthesis, control-plane access) from ever applying to a stored user whose
// id happens to collide with a sentinel.
type Identity struct {
	kind     identityKind
	user     *models.User
	username string
}

// StoredUser wraps a credential-store row as an identity.
func StoredUser(user *models.User) Identity {
	return Identity{kind: kindStoredUser, user: user}
}

// ConfiguredSuperuser builds the master identity from configuration.
func ConfiguredSuperuser(username string) Identity {
	return Identity{kind: kindConfiguredSuperuser, username: username}
}

// IsMaster reports whether the identity is the configured superuser.
func (i Identity) IsMaster() bool {
	return i.kind == kindConfiguredSuperuser
}

// UserID returns the stored user's id, or zero for the superuser.
func (i Identity) UserID() uint64 {
	if i.kind == kindStoredUser && i.user != nil {
		return i.user.ID
	}
	return 0
}

// Username returns the login name of the identity.
func (i Identity) Username() string {
	if i.kind == kindStoredUser && i.user != nil {
		return i.user.Username
	}
	return i.username
}

// Role returns the base role of the identity.
func (i Identity) Role() string {
	if i.kind == kindConfiguredSuperuser {
		return models.RoleMaster
	}
	if i.user != nil {
		return i.user.Role
	}
	return models.RoleUser
}

// IsMasterCredentials compares a presented credential pair against the
// configured master pair in constant time. The master identity is never
// looked up in the credential store.
func IsMasterCredentials(configuredUsername, configuredPassword, username, password string) bool {
	if configuredUsername == "" || configuredPassword == "" {
		return false
	}
	userMatch := subtle.ConstantTimeCompare([]byte(configuredUsername), []byte(username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(configuredPassword), []byte(password)) == 1
	return userMatch && passMatch
}
