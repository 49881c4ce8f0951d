package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hasher for passwords and refresh token fingerprints
// Input is pre-hashed with sha256: bcrypt ignores anything after 72 bytes and signed JWT is longer
type BcryptHasher struct {
	// bcrypt.DefaultCost when zero
	Cost int
}

var DefaultHasher = BcryptHasher{Cost: bcrypt.DefaultCost}

func (h BcryptHasher) Hash(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty value can't be hashed")
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(raw))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt error: %w", err)
	}
	return string(hash), nil
}

// Compare returns ErrHashMismatch if raw does not match hash
// Any other error means hash is broken and has to be treated as server error
func (h BcryptHasher) Compare(hash string, raw string) error {
	sum := sha256.Sum256([]byte(raw))
	err := bcrypt.CompareHashAndPassword([]byte(hash), sum[:])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrHashMismatch
	default:
		return fmt.Errorf("bcrypt error: %w", err)
	}
}

var ErrHashMismatch = errors.New("hash does not match")
