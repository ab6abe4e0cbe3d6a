package httpapi

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway/memory"
)

func seedUser(t *testing.T, store *memory.Store, username string, password string) {
	t.Helper()
	if err := store.CreateUser(context.Background(), domain.UserAccount{
		Username: username,
		Password: password,
		Role:     "admin",
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestVerifyAndLogin(t *testing.T) {
	store := memory.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	seedUser(t, store, "admin", string(hash))

	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, store)

	if err := auth.Verify(context.Background(), "admin", "correct horse"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := auth.Verify(context.Background(), "admin", "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
	if err := auth.Verify(context.Background(), "ghost", "correct horse"); err == nil {
		t.Fatal("unknown user accepted")
	}

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	store := memory.New()
	seedUser(t, store, "admin", "plain-secret")

	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, store)
	if err := auth.Verify(context.Background(), "admin", "plain-secret"); err != nil {
		t.Fatalf("verify after upgrade: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || !isPasswordHash(users[0].Password) {
		t.Fatal("stored password was not upgraded to a bcrypt hash")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	store := memory.New()
	seedUser(t, store, "admin", "plain-secret")

	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, store)
	other := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, store)

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
}
