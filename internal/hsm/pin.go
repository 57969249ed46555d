package hsm

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ruralpay/ledger/internal/config"
	"golang.org/x/crypto/argon2"
)

// PINHasher hashes PINs with Argon2id. Hashes are stored as
// base64(salt || key).
type PINHasher struct {
	params config.Argon2Config
	dummy  string
}

func NewPINHasher(params config.Argon2Config) *PINHasher {
	if params.SaltLength == 0 {
		params.SaltLength = 16
	}
	if params.KeyLength == 0 {
		params.KeyLength = 32
	}
	h := &PINHasher{params: params}
	// Verified against when the account does not exist, so the response
	// takes as long as a real check.
	h.dummy, _ = h.Hash("000000")
	return h
}

// Hash hashes a PIN with a fresh random salt.
func (h *PINHasher) Hash(pin string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := h.derive(pin, salt)

	result := make([]byte, len(salt)+len(key))
	copy(result, salt)
	copy(result[len(salt):], key)

	return base64.StdEncoding.EncodeToString(result), nil
}

// Verify reports whether pin matches the stored hash.
func (h *PINHasher) Verify(pin, hashedPIN string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(hashedPIN)
	if err != nil {
		return false, fmt.Errorf("invalid PIN hash format: %w", err)
	}

	saltLen := int(h.params.SaltLength)
	if len(decoded) <= saltLen {
		return false, errors.New("PIN hash too short")
	}

	salt := decoded[:saltLen]
	storedKey := decoded[saltLen:]

	return subtle.ConstantTimeCompare(h.derive(pin, salt), storedKey) == 1, nil
}

// VerifyDummy burns the same work as Verify without a real hash.
func (h *PINHasher) VerifyDummy(pin string) {
	_, _ = h.Verify(pin, h.dummy)
}

func (h *PINHasher) derive(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)
}
