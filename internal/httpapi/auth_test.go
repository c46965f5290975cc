package httpapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"cafepos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

const testSecret = "test-secret-key-with-32-characters!"

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"manager": {
				Username:  "manager",
				Password:  "manager123",
				Role:      domain.RoleManager,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), testSecret, time.Hour, store)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "Manager", Password: "manager123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleManager || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 || users[0].Password == "manager123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if store.updates != 1 {
		t.Fatalf("expected one password update, got %d", store.updates)
	}
}

func TestAuthManagerRejectsInactiveAndWrongPassword(t *testing.T) {
	hash, err := hashPassword("barista123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"barista": {Username: "barista", Password: hash, Role: domain.RoleStaff, Active: true},
		"former":  {Username: "former", Password: hash, Role: domain.RoleStaff, Active: false},
	}}
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, store)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "barista", Password: "nope"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "former", Password: "barista123"})
	if !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestParseTokenRoundTripAndExpiry(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, store)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "ledger1", Password: "counting-beans", Role: domain.RoleAccountant}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ledger1", Password: "counting-beans"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "ledger1" || actor.Role != domain.RoleAccountant {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	now = now.Add(2 * time.Hour)
	if _, err := manager.ParseToken(resp.AccessToken); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, nil)

	unknownRole, err := manager.sign("mallory", "owner", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(unknownRole); err == nil {
		t.Fatalf("expected token with unknown role to be rejected")
	}

	other := NewAuthManager(context.Background(), "another-secret-with-32-characters!!", time.Hour, nil)
	foreign, err := other.sign("mallory", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, roleClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "mallory", Issuer: tokenIssuer},
		Role:             domain.RoleAdmin,
	})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestCreateUserValidatesAndRejectsDuplicates(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, store)

	cases := []domain.UserCreateRequest{
		{Username: "ab", Password: "long-enough", Role: domain.RoleStaff},
		{Username: "barista2", Password: "short", Role: domain.RoleStaff},
		{Username: "barista2", Password: "long-enough", Role: "owner"},
		{Username: "bar ista", Password: "long-enough", Role: domain.RoleStaff},
	}
	for _, req := range cases {
		if _, err := manager.CreateUser(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}

	user, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "Barista2", Password: "long-enough", Role: domain.RoleStaff})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "barista2" || !user.Active {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "barista2", Password: "long-enough", Role: domain.RoleStaff}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(manager.ListUsers(context.Background())) != 1 {
		t.Fatalf("expected one listed user")
	}
}
