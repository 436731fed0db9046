package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// unusableSecretBytes is the entropy hashed into placeholder passwords for
// accounts created through Google. Nobody knows the plaintext, so password
// login can never succeed for them.
const unusableSecretBytes = 32

// PasswordHasher hashes and verifies passwords with bcrypt. Each hash embeds
// its own random salt and cost, so verification works across cost changes.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using the given bcrypt cost. A cost of
// zero selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Hash returns the encoded bcrypt hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. Mismatches and malformed
// hashes both return false.
func (h *PasswordHasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UnusableHash returns a valid bcrypt hash of a random secret that is
// discarded immediately.
func (h *PasswordHasher) UnusableHash() (string, error) {
	b := make([]byte, unusableSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating placeholder secret: %w", err)
	}
	// Raw 32 bytes base64-encode to 43 chars, inside bcrypt's 72-byte limit.
	return h.Hash(base64.RawURLEncoding.EncodeToString(b))
}
