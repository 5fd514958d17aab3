package sessionmgr_test

import (
	"context"
	"testing"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/credvault"
	"github.com/mtgscribe/gateway/db"
	"github.com/mtgscribe/gateway/models"
	"github.com/mtgscribe/gateway/redisclient"
	"github.com/mtgscribe/gateway/sessionmgr"
)

// fakeUserStore is a minimal in-memory stand-in for *db.Store's user
// lookups, letting Login's behavior be exercised without Postgres.
type fakeUserStore struct {
	byEmail map[string]*models.User
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, db.ErrNotFound
}

func (f *fakeUserStore) CreateUser(ctx context.Context, u *models.User) error { return nil }

// testVault uses the weakest Argon2 parameters config.Load accepts
// so these tests don't pay production KDF cost.
func testVault() *credvault.Vault {
	return credvault.New(credvault.Params{Time: 2, MemoryKiB: 19 * 1024, Threads: 1, KeyLen: 32}, 8)
}

func TestResolveUnknownTokenReturnsNil(t *testing.T) {
	kv := redisclient.NewMemoryStore()
	mgr := sessionmgr.New(kv, nil, testVault())

	p, err := mgr.Resolve(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil principal for unknown token, got %+v", p)
	}
}

func TestResolveEmptyTokenReturnsNil(t *testing.T) {
	kv := redisclient.NewMemoryStore()
	mgr := sessionmgr.New(kv, nil, testVault())

	p, err := mgr.Resolve(context.Background(), "")
	if err != nil || p != nil {
		t.Fatalf("expected nil, nil for empty token, got %+v, %v", p, err)
	}
}

func TestLogoutOfUnknownTokenIsNotAnError(t *testing.T) {
	kv := redisclient.NewMemoryStore()
	mgr := sessionmgr.New(kv, nil, testVault())

	if err := mgr.Logout(context.Background(), "ghost-token"); err != nil {
		t.Fatalf("expected no error logging out an unknown token, got %v", err)
	}
}

// TestLoginUnknownEmailAndWrongPasswordShareGenericKind is the actual
// enumeration-resistance check: an unknown email and a known email with
// the wrong password must be indistinguishable from the caller's side,
// both as *apierr.Error{Kind: KindInvalidCreds} with the same message.
// Both branches also run a real vault.Verify call (against DummyHash
// for the unknown-email case) rather than short-circuiting.
func TestLoginUnknownEmailAndWrongPasswordShareGenericKind(t *testing.T) {
	vault := testVault()
	hash, err := vault.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("hash setup: %v", err)
	}

	store := &fakeUserStore{byEmail: map[string]*models.User{
		"known@example.com": {ID: "u1", Email: "known@example.com", PasswordHash: hash, Tier: models.TierFree},
	}}
	kv := redisclient.NewMemoryStore()
	mgr := sessionmgr.New(kv, store, vault)

	_, _, errUnknownEmail := mgr.Login(context.Background(), "nobody@example.com", "whatever")
	_, _, errWrongPassword := mgr.Login(context.Background(), "known@example.com", "not-the-password")

	apiErrUnknown, ok := errUnknownEmail.(*apierr.Error)
	if !ok {
		t.Fatalf("unknown email: expected *apierr.Error, got %T (%v)", errUnknownEmail, errUnknownEmail)
	}
	apiErrWrongPw, ok := errWrongPassword.(*apierr.Error)
	if !ok {
		t.Fatalf("wrong password: expected *apierr.Error, got %T (%v)", errWrongPassword, errWrongPassword)
	}

	if apiErrUnknown.Kind != apierr.KindInvalidCreds {
		t.Fatalf("unknown email: expected KindInvalidCreds, got %s", apiErrUnknown.Kind)
	}
	if apiErrWrongPw.Kind != apierr.KindInvalidCreds {
		t.Fatalf("wrong password: expected KindInvalidCreds, got %s", apiErrWrongPw.Kind)
	}
	if apiErrUnknown.Message != apiErrWrongPw.Message {
		t.Fatalf("expected identical messages for both cases, got %q vs %q", apiErrUnknown.Message, apiErrWrongPw.Message)
	}
}

// TestLoginCorrectCredentialsSucceeds confirms the fake store and real
// vault are wired correctly: a matching password must still succeed, so
// the generic-kind path above isn't passing by always rejecting.
func TestLoginCorrectCredentialsSucceeds(t *testing.T) {
	vault := testVault()
	hash, err := vault.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("hash setup: %v", err)
	}

	store := &fakeUserStore{byEmail: map[string]*models.User{
		"known@example.com": {ID: "u1", Email: "known@example.com", PasswordHash: hash, Tier: models.TierFree},
	}}
	kv := redisclient.NewMemoryStore()
	mgr := sessionmgr.New(kv, store, vault)

	token, principal, err := mgr.Login(context.Background(), "known@example.com", "correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("expected successful login, got %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty session token")
	}
	if principal.UserID != "u1" {
		t.Fatalf("expected principal for u1, got %+v", principal)
	}
}
