// Package credvault is the credential vault: password hash/verify,
// strength policy, and email-shape validation. It never surfaces whether
// an account exists — callers (sessionmgr) are responsible for uniform
// error messages across the unknown-user and bad-password cases.
package credvault

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mtgscribe/gateway/concurrency"
	"golang.org/x/crypto/argon2"
)

const argon2SaltLen = 16

// kdfAcquireTimeout bounds how long a caller waits for a KDF slot
// before giving up; past this point the gateway is saturated and
// should fail the request rather than queue it indefinitely.
const kdfAcquireTimeout = 5 * time.Second

// Params holds the Argon2id cost parameters. The floor enforced by
// config.Load keeps a single verification at or above ~50ms on
// production hardware.
type Params struct {
	Time    uint32
	MemoryKiB uint32
	Threads uint8
	KeyLen  uint32
}

// Vault hashes and verifies passwords with a fixed cost parameter set.
// KDF calls run through a bounded semaphore so a burst of login or
// register attempts cannot starve the HTTP worker pool with CPU-bound
// hashing work (spec §5).
type Vault struct {
	params Params
	kdf    *concurrency.Semaphore
}

func New(params Params, maxParallel int) *Vault {
	if params.KeyLen == 0 {
		params.KeyLen = 32
	}
	return &Vault{params: params, kdf: concurrency.NewSemaphore(maxParallel)}
}

// Hash produces an encoded Argon2id digest:
// $argon2id$v=19$m=...,t=...,p=...$salt$hash
func (v *Vault) Hash(password string) (string, error) {
	if !v.kdf.AcquireTimeout(kdfAcquireTimeout) {
		return "", fmt.Errorf("credvault: hashing capacity saturated")
	}
	defer v.kdf.Release()

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credvault: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, v.params.Time, v.params.MemoryKiB, v.params.Threads, v.params.KeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.MemoryKiB,
		v.params.Time,
		v.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// Verify reports whether password matches the encoded digest. A
// well-formed digest always costs one KDF computation; a malformed one
// returns false without it. Callers doing their own enumeration-
// resistance verify against a well-formed dummy hash (sessionmgr.login
// does so when the user is unknown). A saturated KDF semaphore fails
// verification closed.
func (v *Vault) Verify(password, encoded string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), kdfAcquireTimeout)
	defer cancel()
	if v.kdf.Acquire(ctx) != nil {
		return false
	}
	defer v.kdf.Release()

	params, salt, hash, err := parseEncoded(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}

func parseEncoded(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return Params{}, nil, nil, fmt.Errorf("credvault: malformed hash")
	}
	if parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("credvault: unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("credvault: invalid version segment")
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("credvault: unsupported argon2 version %d", version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, nil, fmt.Errorf("credvault: invalid parameter segment")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("credvault: invalid salt encoding: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("credvault: invalid hash encoding: %w", err)
	}

	return p, salt, hash, nil
}

// DummyHash is a fixed, valid-looking digest used to make the KDF run
// during login attempts against unknown emails, so timing does not leak
// account existence.
func (v *Vault) DummyHash() string {
	return "$argon2id$v=19$m=19456,t=2,p=1$MDAwMDAwMDAwMDAwMDAwMA$MDAwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA"
}
