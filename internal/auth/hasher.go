// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrap(NewValidationError("password", "cannot be empty"))

// PasswordHasher provides password hashing and verification.
// Implementations hold no mutable state and are safe for concurrent use.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be recomputed with the current scheme.
	NeedsUpgrade(hash string) bool
}

// Argon2Params tunes the argon2id cost.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP baseline parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  argon2Memory,
		Time:    argon2Time,
		Threads: argon2Threads,
		SaltLen: argon2SaltLen,
		KeyLen:  argon2KeyLen,
	}
}

// Validate rejects parameters too weak to be useful.
func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < 8*1024:
		return oops.Code("AUTH_HASHER_CONFIG_INVALID").Errorf("argon2 memory must be at least 8192 KiB, got %d", p.Memory)
	case p.Time < 1:
		return oops.Code("AUTH_HASHER_CONFIG_INVALID").Errorf("argon2 time must be at least 1")
	case p.Threads < 1:
		return oops.Code("AUTH_HASHER_CONFIG_INVALID").Errorf("argon2 threads must be at least 1")
	case p.SaltLen < 16:
		return oops.Code("AUTH_HASHER_CONFIG_INVALID").Errorf("argon2 salt length must be at least 16 bytes")
	case p.KeyLen < 16:
		return oops.Code("AUTH_HASHER_CONFIG_INVALID").Errorf("argon2 key length must be at least 16 bytes")
	}
	return nil
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrapf(ErrHashing, "read salt: %v", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// phcHash is a parsed argon2id PHC string.
type phcHash struct {
	version int
	memory  uint32
	time    uint32
	threads uint32
	salt    []byte
	key     []byte
}

func invalidHash(format string, args ...any) error {
	return oops.Code("AUTH_INVALID_HASH").Wrapf(ErrHashing, format, args...)
}

func parsePHC(encodedHash string) (*phcHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, invalidHash("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, invalidHash("unsupported hash algorithm: %s", parts[1])
	}

	var p phcHash
	if _, err := fmt.Sscanf(parts[2], "v=%d", &p.version); err != nil {
		return nil, invalidHash("parse version: %v", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, invalidHash("parse parameters: %v", err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, invalidHash("decode salt: %v", err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, invalidHash("decode key: %v", err)
	}

	// threads must fit in uint8 to avoid silent truncation
	if p.threads == 0 || p.threads > 255 {
		return nil, invalidHash("threads value %d out of range", p.threads)
	}
	if len(p.key) == 0 || len(p.key) > 1<<30 {
		return nil, invalidHash("invalid hash key length: %d", len(p.key))
	}
	return &p, nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, uint8(p.threads), uint32(len(p.key)))

	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id or was computed with
// different cost parameters than this hasher uses.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	p, err := parsePHC(hash)
	if err != nil {
		return true
	}
	return p.version != argon2.Version ||
		p.memory != h.params.Memory ||
		p.time != h.params.Time ||
		p.threads != uint32(h.params.Threads) ||
		uint32(len(p.key)) != h.params.KeyLen
}

// UpgradingHasher hashes with a primary scheme and still verifies hashes
// produced by a legacy scheme, so stored credentials migrate on next use.
type UpgradingHasher struct {
	primary PasswordHasher
	legacy  PasswordHasher
}

// NewUpgradingHasher combines a primary hasher with a legacy verifier.
func NewUpgradingHasher(primary, legacy PasswordHasher) *UpgradingHasher {
	return &UpgradingHasher{primary: primary, legacy: legacy}
}

// Hash always uses the primary scheme.
func (h *UpgradingHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

// Verify dispatches on the hash prefix.
func (h *UpgradingHasher) Verify(password, hash string) (bool, error) {
	if h.legacy != nil && IsBcryptHash(hash) {
		return h.legacy.Verify(password, hash)
	}
	return h.primary.Verify(password, hash)
}

// NeedsUpgrade defers to the primary scheme.
func (h *UpgradingHasher) NeedsUpgrade(hash string) bool {
	return h.primary.NeedsUpgrade(hash)
}

var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*UpgradingHasher)(nil)
)
