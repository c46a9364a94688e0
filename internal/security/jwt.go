package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// DatabaseGrant authorizes access to one tenant database with a role scoped
// to that database. The JSON field names match the login payload consumed by
// existing clients.
type DatabaseGrant struct {
	Database string `json:"db_name"`
	Role     string `json:"rol"`
}

// Claims defines the session token payload. The token is the sole source of
// truth for role and grant data during request handling; switching databases
// issues a new token rather than mutating an existing one.
type Claims struct {
	UserID          uint64          `json:"user_id"`
	Username        string          `json:"username"`
	Role            string          `json:"role"`
	Databases       []DatabaseGrant `json:"databases"`
	CurrentDatabase string          `json:"current_database,omitempty"`
	jwt.RegisteredClaims
}

// HasDatabase reports whether the claims grant access to the named database.
// Master claims grant access to every database.
func (c *Claims) HasDatabase(name string) bool {
	if c == nil {
		return false
	}
	if c.Role == "master" {
		return true
	}
	for _, grant := range c.Databases {
		if grant.Database == name {
			return true
		}
	}
	return false
}

// IssueToken signs a session token for the given identity with the configured
// expiry. Grants and the selected database are embedded as-is; callers decide
// both (for master, grants are synthesized from the tenant registry).
func IssueToken(secret string, identity Identity, grants []DatabaseGrant, currentDatabase string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:          identity.UserID(),
		Username:        identity.Username(),
		Role:            identity.Role(),
		Databases:       grants,
		CurrentDatabase: currentDatabase,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a session token and returns its claims.
func ParseToken(secret string, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeToken decodes claims without verifying the signature. It exists for
// inspecting expiry and metadata only and must never feed an authorization
// decision.
func DecodeToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SynthesizeMasterGrants builds the master grant set from the registered
// tenant list, forcing role admin regardless of any stored per-database role.
// The result is issuance-time only and never persisted.
func SynthesizeMasterGrants(databases []string) []DatabaseGrant {
	grants := make([]DatabaseGrant, 0, len(databases))
	for _, name := range databases {
		grants = append(grants, DatabaseGrant{Database: name, Role: "admin"})
	}
	return grants
}
