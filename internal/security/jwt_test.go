package security

import (
	"strings"
	"testing"
	"time"

	"github.com/opticore-app/opticore/internal/models"
)

const testSecret = "test-secret"

func testUser() *models.User {
	return &models.User{ID: 7, Username: "alice", Role: models.RoleUser}
}

func TestIssueAndParseTokenRoundTrip(t *testing.T) {
	grants := []DatabaseGrant{{Database: "acme", Role: "user"}}
	token, errIssue := IssueToken(testSecret, StoredUser(testUser()), grants, "acme", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	claims, errParse := ParseToken(testSecret, token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.UserID != 7 || claims.Username != "alice" || claims.Role != "user" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.CurrentDatabase != "acme" {
		t.Fatalf("expected current database acme, got %q", claims.CurrentDatabase)
	}
	if len(claims.Databases) != 1 || claims.Databases[0] != grants[0] {
		t.Fatalf("unexpected grants: %+v", claims.Databases)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, errIssue := IssueToken(testSecret, StoredUser(testUser()), nil, "", -time.Minute)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	if _, errParse := ParseToken(testSecret, token); errParse != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	token, errIssue := IssueToken(testSecret, StoredUser(testUser()), nil, "acme", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, errParse := ParseToken(testSecret, tampered); errParse != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, errIssue := IssueToken(testSecret, StoredUser(testUser()), nil, "acme", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	if _, errParse := ParseToken("other-secret", token); errParse != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenRejectsMalformed(t *testing.T) {
	if _, errParse := ParseToken(testSecret, "not-a-token"); errParse != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestDecodeTokenIgnoresSignature(t *testing.T) {
	token, errIssue := IssueToken(testSecret, StoredUser(testUser()), nil, "acme", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	claims, errDecode := DecodeToken(token)
	if errDecode != nil {
		t.Fatalf("decode token: %v", errDecode)
	}
	if claims.Username != "alice" || claims.CurrentDatabase != "acme" {
		t.Fatalf("unexpected decoded claims: %+v", claims)
	}
}

func TestClaimsHasDatabase(t *testing.T) {
	claims := &Claims{
		Role:      models.RoleUser,
		Databases: []DatabaseGrant{{Database: "acme", Role: "user"}},
	}
	if !claims.HasDatabase("acme") {
		t.Fatal("expected acme to be granted")
	}
	if claims.HasDatabase("globex") {
		t.Fatal("expected globex to be denied")
	}

	master := &Claims{Role: models.RoleMaster}
	if !master.HasDatabase("anything") {
		t.Fatal("expected master to access any database")
	}
}

func TestSynthesizeMasterGrantsForcesAdmin(t *testing.T) {
	grants := SynthesizeMasterGrants([]string{"acme", "globex"})
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	for _, grant := range grants {
		if grant.Role != "admin" {
			t.Fatalf("expected role admin for %s, got %s", grant.Database, grant.Role)
		}
	}
}
