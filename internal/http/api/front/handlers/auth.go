package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/config"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/revocation"
	"github.com/opticore-app/opticore/internal/security"
	"github.com/opticore-app/opticore/internal/store"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
)

// AuthHandler handles login, database switching and logout.
type AuthHandler struct {
	store       *store.GormStore
	jwtCfg      config.JWTConfig
	masterCfg   config.MasterConfig
	revocations *revocation.Store
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(st *store.GormStore, jwtCfg config.JWTConfig, masterCfg config.MasterConfig, revocations *revocation.Store) *AuthHandler {
	return &AuthHandler{store: st, jwtCfg: jwtCfg, masterCfg: masterCfg, revocations: revocations}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login authenticates a credential pair and issues a session token. The
// master pair is checked first and never resolved through the credential
// store; any mismatch on the stored-user path returns the same generic
// message to avoid user enumeration.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	if security.IsMasterCredentials(h.masterCfg.Username, h.masterCfg.Password, username, password) {
		h.respondWithMasterToken(c)
		return
	}

	user, errFind := h.store.FindByUsername(c.Request.Context(), username)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			h.auditLogin(c, nil, username, false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	// Password first: a wrong password against a disabled account must get
	// the same generic response as an unknown username.
	if !security.CheckPassword(user.Password, password) {
		h.auditLogin(c, &user.ID, username, false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !user.Active {
		h.auditLogin(c, &user.ID, username, false)
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}

	if strings.TrimSpace(user.TOTPSecret) != "" {
		code := strings.TrimSpace(body.TOTPCode)
		if code == "" || !totp.Validate(code, user.TOTPSecret) {
			h.auditLogin(c, &user.ID, username, false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
	}

	if security.NeedsRehash(user.Password) {
		if hash, errHash := security.HashPassword(password); errHash == nil {
			if errUpdate := h.store.UpdatePassword(c.Request.Context(), user.ID, hash); errUpdate != nil {
				log.WithError(errUpdate).Warn("upgrade credential hash")
			}
		}
	}

	grants, errGrants := h.loadGrants(c, user.ID)
	if errGrants != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query grants failed"})
		return
	}

	currentDatabase := ""
	if len(grants) > 0 {
		currentDatabase = grants[0].Database
	}

	now := time.Now().UTC()
	if errRecord := h.store.RecordLogin(c.Request.Context(), user.ID, now); errRecord != nil {
		log.WithError(errRecord).Warn("record last login")
	}
	h.auditLogin(c, &user.ID, username, true)

	h.respondWithToken(c, security.StoredUser(user), grants, currentDatabase)
}

// switchDatabaseRequest defines the request body for switching tenants.
type switchDatabaseRequest struct {
	Database string `json:"database"`
}

// SwitchDatabase issues a brand-new token selecting a different tenant
// database. Grants are re-read from the store so an admin's assignment
// changes take effect here, not just at token expiry.
func (h *AuthHandler) SwitchDatabase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body switchDatabaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	requested := strings.TrimSpace(body.Database)
	if requested == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing database"})
		return
	}

	if claims.Role == models.RoleMaster {
		names, errList := h.store.ListTenantDatabases(c.Request.Context())
		if errList != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query tenants failed"})
			return
		}
		if !containsName(names, requested) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}
		grants := security.SynthesizeMasterGrants(names)
		h.respondWithToken(c, security.ConfiguredSuperuser(claims.Username), grants, requested)
		return
	}

	user, errFind := h.store.FindByUsername(c.Request.Context(), claims.Username)
	if errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}

	grants, errGrants := h.loadGrants(c, user.ID)
	if errGrants != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query grants failed"})
		return
	}

	allowed := false
	for _, grant := range grants {
		if grant.Database == requested {
			allowed = true
			break
		}
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	h.respondWithToken(c, security.StoredUser(user), grants, requested)
}

// Logout revokes the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	expiresAt := time.Now().UTC().Add(h.jwtCfg.Expiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if errRevoke := h.revocations.Revoke(c.Request.Context(), claims.ID, expiresAt); errRevoke != nil {
		log.WithError(errRevoke).Warn("revoke token")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LogoutAll revokes every session of the calling user by watermark. The
// presented token is also denied individually so the call takes effect even
// for the master identity, which has no stored user id.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	expiresAt := time.Now().UTC().Add(h.jwtCfg.Expiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if errRevoke := h.revocations.Revoke(c.Request.Context(), claims.ID, expiresAt); errRevoke != nil {
		log.WithError(errRevoke).Warn("revoke token")
	}
	if claims.UserID != 0 {
		if errAll := h.revocations.RevokeAllBefore(c.Request.Context(), claims.UserID, time.Now().UTC()); errAll != nil {
			log.WithError(errAll).Warn("revoke all sessions")
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadGrants converts the user's stored grants into token grant entries.
func (h *AuthHandler) loadGrants(c *gin.Context, userID uint64) ([]security.DatabaseGrant, error) {
	accesses, errList := h.store.ListDatabaseAccess(c.Request.Context(), userID)
	if errList != nil {
		return nil, errList
	}
	grants := make([]security.DatabaseGrant, 0, len(accesses))
	for _, access := range accesses {
		grants = append(grants, security.DatabaseGrant{Database: access.Database, Role: access.Role})
	}
	return grants, nil
}

// respondWithMasterToken synthesizes the all-tenant grant set and issues a
// master token. Grant roles are forced to admin at issuance time only.
func (h *AuthHandler) respondWithMasterToken(c *gin.Context) {
	names, errList := h.store.ListTenantDatabases(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query tenants failed"})
		return
	}
	grants := security.SynthesizeMasterGrants(names)
	currentDatabase := ""
	if len(names) > 0 {
		currentDatabase = names[0]
	}
	h.respondWithToken(c, security.ConfiguredSuperuser(h.masterCfg.Username), grants, currentDatabase)
}

// respondWithToken issues and returns a session token with its payload.
func (h *AuthHandler) respondWithToken(c *gin.Context, identity security.Identity, grants []security.DatabaseGrant, currentDatabase string) {
	token, errSign := security.IssueToken(h.jwtCfg.Secret, identity, grants, currentDatabase, h.jwtCfg.Expiry)
	if errSign != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":            token,
		"user_id":          identity.UserID(),
		"username":         identity.Username(),
		"role":             identity.Role(),
		"databases":        grants,
		"current_database": currentDatabase,
		"expires_in":       int64(h.jwtCfg.Expiry.Seconds()),
	})
}

// auditLogin appends a login attempt record.
func (h *AuthHandler) auditLogin(c *gin.Context, userID *uint64, username string, success bool) {
	if errAudit := h.store.AuditLogin(c.Request.Context(), userID, username, success, c.ClientIP()); errAudit != nil {
		log.WithError(errAudit).Warn("audit login")
	}
}

// containsName reports whether names includes the given entry.
func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}
