package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPasswordHash         = errors.New("invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("incompatible password hash version")
	ErrPasswordMismatch            = errors.New("password does not match")
)

// PasswordHasher turns plaintext passwords into storable hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) error
}

// Argon2idParams tunes the argon2id key derivation.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2idHasher hashes passwords into the PHC string format
// $argon2id$v=19$m=...,t=...,p=...$salt$hash.
type Argon2idHasher struct {
	params Argon2idParams
}

// NewArgon2idHasher constructs a hasher. Zero params fall back to DefaultArgon2idParams.
func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	if params == (Argon2idParams{}) {
		params = DefaultArgon2idParams
	}
	return &Argon2idHasher{params: params}
}

// Hash derives a salted argon2id hash.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	p := h.params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against a hash produced by Hash. The parameters
// embedded in the hash are used, so older hashes keep verifying after the
// defaults change.
func (h *Argon2idHasher) Verify(encoded, password string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidPasswordHash
	}
	if version != argon2.Version {
		return ErrIncompatiblePasswordVersion
	}

	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return ErrInvalidPasswordHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidPasswordHash
	}
	stored, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidPasswordHash
	}

	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(stored)))
	if subtle.ConstantTimeCompare(stored, candidate) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}
