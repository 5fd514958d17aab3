// Package sessionmgr issues and resolves opaque, server-held session
// tokens. Session blobs live in the KV store as JSON, grounded on the
// SET EX / GET / DEL pattern of a Redis-backed session store; the
// gateway never puts identity claims in the cookie itself.
package sessionmgr

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/credvault"
	"github.com/mtgscribe/gateway/db"
	"github.com/mtgscribe/gateway/models"
	"github.com/mtgscribe/gateway/redisclient"
)

const (
	sessionKeyPrefix = "sess:"
	// SessionTTL is the rolling session lifetime spec §3/§6 name: every
	// successful Resolve rewrites the session blob with a fresh TTL, so
	// an active session never expires mid-use, and the cookie's MaxAge
	// is reissued to match.
	SessionTTL = 7 * 24 * time.Hour
	tokenBytes = 32 // 256 bits, well above the 128-bit floor
)

// userStore is the subset of *db.Store Manager needs. Declaring it as
// an interface lets Login's enumeration-resistance property be tested
// against a fake, without a live Postgres connection.
type userStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Manager issues/destroys/resolves sessions and runs register/login.
type Manager struct {
	kv    redisclient.Store
	rows  userStore
	vault *credvault.Vault
}

func New(kv redisclient.Store, rows userStore, vault *credvault.Vault) *Manager {
	return &Manager{kv: kv, rows: rows, vault: vault}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessionmgr: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

func (m *Manager) writeSession(ctx context.Context, p models.Principal) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("sessionmgr: marshal principal: %w", err)
	}
	if err := m.kv.Set(ctx, sessionKey(token), string(blob), SessionTTL); err != nil {
		return "", fmt.Errorf("sessionmgr: write session: %w", err)
	}
	return token, nil
}

// Register creates a user (tier=free) and an initial session. Fails with
// a validation Error listing every password-strength violation, or a
// generic-looking EmailTaken/MalformedEmail Error.
func (m *Manager) Register(ctx context.Context, email, password string) (string, models.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !credvault.ValidateEmail(email) {
		return "", models.Principal{}, apierr.New(apierr.KindValidation, "email is not a valid address")
	}
	if errs := credvault.ValidateStrength(password); len(errs) > 0 {
		details := make([]apierr.FieldError, len(errs))
		for i, e := range errs {
			details[i] = apierr.FieldError{Field: "password", Message: e}
		}
		return "", models.Principal{}, apierr.Validation(details)
	}

	existing, err := m.rows.GetUserByEmail(ctx, email)
	if err != nil && err != db.ErrNotFound {
		return "", models.Principal{}, apierr.Internal(err)
	}
	if existing != nil {
		return "", models.Principal{}, apierr.New(apierr.KindValidation, "email is already registered")
	}

	hash, err := m.vault.Hash(password)
	if err != nil {
		return "", models.Principal{}, apierr.Internal(err)
	}

	now := time.Now()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Tier:         models.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.rows.CreateUser(ctx, u); err != nil {
		return "", models.Principal{}, apierr.Internal(err)
	}

	principal := models.Principal{UserID: u.ID, Email: u.Email, Tier: u.Tier}
	token, err := m.writeSession(ctx, principal)
	if err != nil {
		return "", models.Principal{}, apierr.Internal(err)
	}
	return token, principal, nil
}

// Login returns the same generic InvalidCredentials error whether the
// email is unknown or the password is wrong, and always runs the Argon2
// verify — against a dummy digest for unknown emails — so the call
// duration does not leak which case occurred.
func (m *Manager) Login(ctx context.Context, email, password string) (string, models.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	invalidCreds := apierr.New(apierr.KindInvalidCreds, "invalid email or password")

	u, err := m.rows.GetUserByEmail(ctx, email)
	if err != nil && err != db.ErrNotFound {
		return "", models.Principal{}, apierr.Internal(err)
	}

	if u == nil {
		m.vault.Verify(password, m.vault.DummyHash())
		return "", models.Principal{}, invalidCreds
	}
	if !m.vault.Verify(password, u.PasswordHash) {
		return "", models.Principal{}, invalidCreds
	}

	principal := models.Principal{UserID: u.ID, Email: u.Email, Tier: u.Tier}
	token, err := m.writeSession(ctx, principal)
	if err != nil {
		return "", models.Principal{}, apierr.Internal(err)
	}
	return token, principal, nil
}

// Logout destroys the session unconditionally; an already-gone token is
// not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.kv.Del(ctx, sessionKey(token))
}

// Resolve returns the principal bound to token, re-validating the
// referenced user is still live. A session referencing a deleted user is
// destroyed and treated as absent.
func (m *Manager) Resolve(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		return nil, nil
	}
	blob, ok, err := m.kv.Get(ctx, sessionKey(token))
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if !ok {
		return nil, nil
	}
	var p models.Principal
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		_ = m.kv.Del(ctx, sessionKey(token))
		return nil, nil
	}

	u, err := m.rows.GetUserByID(ctx, p.UserID)
	if err != nil && err != db.ErrNotFound {
		return nil, apierr.Internal(err)
	}
	if u == nil || !u.IsLive() {
		_ = m.kv.Del(ctx, sessionKey(token))
		return nil, nil
	}

	// Tier may have changed server-side since the session was issued;
	// reflect the current row rather than the stale cached value.
	p.Tier = u.Tier

	// Rolling TTL: every successful resolve rewrites the blob with a
	// fresh SessionTTL so an actively-used session never expires.
	// Best-effort — a refresh failure shouldn't fail the request that
	// triggered it, just shorten this session's remaining rolling window.
	if blob, err := json.Marshal(p); err == nil {
		_ = m.kv.Set(ctx, sessionKey(token), string(blob), SessionTTL)
	}

	return &p, nil
}
