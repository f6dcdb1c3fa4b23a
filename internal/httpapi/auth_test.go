package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"scanpos/internal/domain"
	"scanpos/internal/store/memory"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}

	other := NewAuthManager("another-secret-entirely", time.Hour, memory.NewSeeded())
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with different secret to be rejected")
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "whatever"}); err == nil {
		t.Fatalf("expected login failure for unknown user")
	}
}

func TestLoginUpgradesLegacyPlaintextPassword(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "legacy", Password: "plain-secret", Role: "cashier", Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("legacy login: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil || len(users) != 1 {
		t.Fatalf("list users: %v %+v", err, users)
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected stored password upgraded to bcrypt, got %q", users[0].Password)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "secret99"}); err == nil {
		t.Fatalf("expected short username rejection")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "valid", Password: "123"}); err == nil {
		t.Fatalf("expected short password rejection")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "cashier", Password: "secret99"}); err == nil {
		t.Fatalf("expected duplicate username rejection")
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "valid", Password: "secret99"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if created.Role != "cashier" || !created.Active {
		t.Fatalf("unexpected cashier %+v", created)
	}

	cashiers := auth.ListCashiers()
	found := false
	for _, c := range cashiers {
		if c.Username == "valid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("created cashier missing from list: %+v", cashiers)
	}
}
