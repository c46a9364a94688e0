package front

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/opticore-app/opticore/internal/config"
	internalhttp "github.com/opticore-app/opticore/internal/http"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/security"
	"github.com/opticore-app/opticore/internal/store"
)

const frontTestSecret = "front-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func frontTestConfig() config.AppConfig {
	return config.AppConfig{
		JWT:    config.JWTConfig{Secret: frontTestSecret, Expiry: time.Hour},
		Master: config.MasterConfig{Username: "root", Password: "master-secret"},
	}
}

func newFrontTestApp(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:front_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.DatabaseAccess{},
		&models.UserPermission{},
		&models.Tenant{},
		&models.LoginAudit{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, name := range []string{"acme", "globex"} {
		if errCreate := conn.Create(&models.Tenant{Name: name, DisplayName: name, Active: true, Settings: []byte("{}")}).Error; errCreate != nil {
			t.Fatalf("seed tenant %s: %v", name, errCreate)
		}
	}

	r := gin.New()
	r.Use(internalhttp.AuthMiddleware(frontTestSecret, nil))
	RegisterFrontRoutes(r, store.NewGormStore(conn), frontTestConfig(), nil)
	return r, conn
}

func seedFrontUser(t *testing.T, conn *gorm.DB, username, password, role string, active bool, databases ...string) *models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{Username: username, Password: hash, Role: role, Active: active}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	for _, database := range databases {
		grant := models.DatabaseAccess{UserID: user.ID, Database: database, Role: role}
		if errGrant := conn.Create(&grant).Error; errGrant != nil {
			t.Fatalf("seed grant: %v", errGrant)
		}
	}
	return &user
}

func postJSON(r *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), errDecode)
	}
	return body
}

func login(t *testing.T, r *gin.Engine, username, password string) map[string]any {
	t.Helper()
	w := postJSON(r, "/v0/auth/login", "", gin.H{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}
	return decodeBody(t, w)
}

func TestLoginIssuesToken(t *testing.T) {
	r, conn := newFrontTestApp(t)
	user := seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	body := login(t, r, "alice", "s3cret")
	if body["token"] == "" || body["token"] == nil {
		t.Fatal("expected a token")
	}
	if body["username"] != "alice" || body["role"] != "user" {
		t.Fatalf("unexpected payload: %v", body)
	}
	if body["current_database"] != "acme" {
		t.Fatalf("expected current database acme, got %v", body["current_database"])
	}

	claims, errParse := security.ParseToken(frontTestSecret, body["token"].(string))
	if errParse != nil {
		t.Fatalf("parse issued token: %v", errParse)
	}
	if claims.UserID != user.ID || !claims.HasDatabase("acme") || claims.HasDatabase("globex") {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	var reread models.User
	if errFind := conn.First(&reread, user.ID).Error; errFind != nil {
		t.Fatalf("reread user: %v", errFind)
	}
	if reread.LastLoginAt == nil {
		t.Fatal("expected last login to be stamped")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	wrongPassword := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	unknownUser := postJSON(r, "/v0/auth/login", "", gin.H{"username": "nobody", "password": "wrong"})

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("failure responses must match: %q vs %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}

	var audits []models.LoginAudit
	if errFind := conn.Order("id ASC").Find(&audits).Error; errFind != nil {
		t.Fatalf("list audits: %v", errFind)
	}
	if len(audits) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(audits))
	}
	if audits[0].Success || audits[1].Success {
		t.Fatal("failed attempts must be audited as failures")
	}
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, false, "acme")

	w := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "s3cret"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestDisabledUserNotEnumerableWithWrongPassword(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, false, "acme")

	disabled := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	unknown := postJSON(r, "/v0/auth/login", "", gin.H{"username": "nobody", "password": "wrong"})

	if disabled.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", disabled.Code, unknown.Code)
	}
	if disabled.Body.String() != unknown.Body.String() {
		t.Fatalf("disabled account must not be distinguishable: %q vs %q",
			disabled.Body.String(), unknown.Body.String())
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	r, conn := newFrontTestApp(t)

	weak, errWeak := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if errWeak != nil {
		t.Fatalf("weak hash: %v", errWeak)
	}
	user := models.User{Username: "alice", Password: string(weak), Role: models.RoleUser, Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}

	login(t, r, "alice", "s3cret")

	var reread models.User
	if errFind := conn.First(&reread, user.ID).Error; errFind != nil {
		t.Fatalf("reread user: %v", errFind)
	}
	if security.NeedsRehash(reread.Password) {
		t.Fatal("expected the stored hash to be upgraded on login")
	}
	if !security.CheckPassword(reread.Password, "s3cret") {
		t.Fatal("upgraded hash must still verify the password")
	}

	login(t, r, "alice", "s3cret")
}

func TestLoginValidatesBody(t *testing.T) {
	r, _ := newFrontTestApp(t)

	w := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoginWithTOTP(t *testing.T) {
	r, conn := newFrontTestApp(t)
	user := seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	key, errKey := totp.Generate(totp.GenerateOpts{Issuer: "opticore", AccountName: "alice"})
	if errKey != nil {
		t.Fatalf("generate totp key: %v", errKey)
	}
	if errUpdate := conn.Model(user).Update("totp_secret", key.Secret()).Error; errUpdate != nil {
		t.Fatalf("enroll totp: %v", errUpdate)
	}

	missing := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "s3cret"})
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing code: expected 401, got %d", missing.Code)
	}
	wrong := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "s3cret", "totp_code": "000000"})
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: expected 401, got %d", wrong.Code)
	}

	code, errCode := totp.GenerateCode(key.Secret(), time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	valid := postJSON(r, "/v0/auth/login", "", gin.H{"username": "alice", "password": "s3cret", "totp_code": code})
	if valid.Code != http.StatusOK {
		t.Fatalf("valid code: expected 200, got %d: %s", valid.Code, valid.Body.String())
	}
}

func TestMasterLoginSynthesizesGrants(t *testing.T) {
	r, _ := newFrontTestApp(t)

	body := login(t, r, "root", "master-secret")
	if body["role"] != "master" {
		t.Fatalf("expected role master, got %v", body["role"])
	}
	if body["user_id"].(float64) != 0 {
		t.Fatalf("master must have user id 0, got %v", body["user_id"])
	}

	claims, errParse := security.ParseToken(frontTestSecret, body["token"].(string))
	if errParse != nil {
		t.Fatalf("parse master token: %v", errParse)
	}
	if len(claims.Databases) != 2 {
		t.Fatalf("expected grants for both tenants, got %+v", claims.Databases)
	}
	for _, grant := range claims.Databases {
		if grant.Role != "admin" {
			t.Fatalf("master grants must carry role admin, got %+v", grant)
		}
	}
}

func TestSwitchDatabaseRequiresGrant(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	token := login(t, r, "alice", "s3cret")["token"].(string)

	denied := postJSON(r, "/v0/auth/switch-database", token, gin.H{"database": "globex"})
	if denied.Code != http.StatusForbidden {
		t.Fatalf("ungranted switch: expected 403, got %d", denied.Code)
	}

	allowed := postJSON(r, "/v0/auth/switch-database", token, gin.H{"database": "acme"})
	if allowed.Code != http.StatusOK {
		t.Fatalf("granted switch: expected 200, got %d: %s", allowed.Code, allowed.Body.String())
	}
	body := decodeBody(t, allowed)
	if body["current_database"] != "acme" {
		t.Fatalf("expected current database acme, got %v", body["current_database"])
	}
	if body["token"] == token {
		t.Fatal("switch must issue a fresh token")
	}
}

func TestSwitchDatabasePicksUpNewGrants(t *testing.T) {
	r, conn := newFrontTestApp(t)
	user := seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	token := login(t, r, "alice", "s3cret")["token"].(string)

	grant := models.DatabaseAccess{UserID: user.ID, Database: "globex", Role: "user"}
	if errGrant := conn.Create(&grant).Error; errGrant != nil {
		t.Fatalf("add grant: %v", errGrant)
	}

	w := postJSON(r, "/v0/auth/switch-database", token, gin.H{"database": "globex"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after grant added, got %d: %s", w.Code, w.Body.String())
	}
	claims, errParse := security.ParseToken(frontTestSecret, decodeBody(t, w)["token"].(string))
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.CurrentDatabase != "globex" || !claims.HasDatabase("globex") {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSwitchDatabaseAsMaster(t *testing.T) {
	r, _ := newFrontTestApp(t)

	token := login(t, r, "root", "master-secret")["token"].(string)

	w := postJSON(r, "/v0/auth/switch-database", token, gin.H{"database": "globex"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["current_database"] != "globex" {
		t.Fatal("expected current database globex")
	}

	missing := postJSON(r, "/v0/auth/switch-database", token, gin.H{"database": "initech"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("unknown tenant: expected 404, got %d", missing.Code)
	}
}

func TestSwitchDatabaseRequiresAuth(t *testing.T) {
	r, _ := newFrontTestApp(t)

	w := postJSON(r, "/v0/auth/switch-database", "", gin.H{"database": "acme"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLogoutSucceedsWithoutRevocationStore(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	token := login(t, r, "alice", "s3cret")["token"].(string)

	if w := postJSON(r, "/v0/auth/logout", token, gin.H{}); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w := postJSON(r, "/v0/auth/logout-all", token, gin.H{}); w.Code != http.StatusOK {
		t.Fatalf("logout-all: expected 200, got %d", w.Code)
	}
}

func TestMeReturnsProfile(t *testing.T) {
	r, conn := newFrontTestApp(t)
	seedFrontUser(t, conn, "alice", "s3cret", models.RoleUser, true, "acme")

	token := login(t, r, "alice", "s3cret")["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v0/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["username"] != "alice" || body["current_database"] != "acme" {
		t.Fatalf("unexpected profile: %v", body)
	}
	if _, ok := body["last_login_at"]; !ok {
		t.Fatal("expected last_login_at for stored user")
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/v0/me", nil)
	anonW := httptest.NewRecorder()
	r.ServeHTTP(anonW, anonymous)
	if anonW.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", anonW.Code)
	}
}
