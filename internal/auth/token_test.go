package auth

import (
	"strings"
	"testing"
	"time"
)

func testClaims(exp time.Time) Claims {
	return Claims{
		Sub:    "4e6e5a2c-0c4d-4b0b-9f59-6a7c2d0e1f3a",
		Name:   "Avery Quinn",
		Email:  "avery@example.com",
		Roles:  []string{RoleUser},
		Scopes: []string{ScopeIdeasRead, ScopeIdeasWrite},
		Exp:    exp.Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, testClaims(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "4e6e5a2c-0c4d-4b0b-9f59-6a7c2d0e1f3a" || claims.Name != "Avery Quinn" || claims.Email != "avery@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.HasRole(RoleUser) || claims.HasRole(RoleAdministrator) {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if !claims.HasScope(ScopeIdeasWrite) || claims.HasScope(ScopeUsersRead) {
		t.Fatalf("unexpected scopes: %v", claims.Scopes)
	}
	if !claims.HasAnyRole(RoleAdministrator, RoleUser) {
		t.Fatal("expected HasAnyRole to match User")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, testClaims(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err = ParseToken(secret, issued); err != ErrExpiredToken {
		t.Fatalf("ParseToken() error = %v, want %v", err, ErrExpiredToken)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, testClaims(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	other, err := IssueToken(secret, Claims{Sub: "1", Roles: []string{RoleAdministrator}, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	payload, _, _ := strings.Cut(other, ".")
	_, signature, _ := strings.Cut(issued, ".")

	cases := map[string]string{
		"wrong secret":    "",
		"swapped payload": payload + "." + signature,
		"no signature":    payload,
		"extra segment":   issued + ".x",
		"empty":           "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			s := secret
			if name == "wrong secret" {
				s = []byte("other")
				token = issued
			}
			if _, err := ParseToken(s, token); err != ErrInvalidToken {
				t.Fatalf("ParseToken() error = %v, want %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{Name: "Nobody", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); err != ErrInvalidToken {
		t.Fatalf("ParseToken() error = %v, want %v", err, ErrInvalidToken)
	}
}
