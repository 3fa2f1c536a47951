package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The iteration count is drawn per password from
// [minIterations, maxIterations) so the work factor is not uniform across
// the user table.
const (
	saltLen       = 32 // 256-bit salt
	derivedKeyLen = 64 // output hash length
	minIterations = 3000
	maxIterations = 5000
)

// Credential is the result of hashing a password: everything that must be
// stored to verify a later attempt.
type Credential struct {
	Hash       string // hex-encoded derived key
	Salt       string // hex-encoded random salt
	Iterations int
}

// HashPassword hashes a plaintext password with PBKDF2-SHA256 using a
// fresh random salt and iteration count.
func HashPassword(password string) (Credential, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("generating salt: %w", err)
	}

	iterations, err := randomIterations()
	if err != nil {
		return Credential{}, fmt.Errorf("choosing iteration count: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, iterations, derivedKeyLen, sha256.New)

	return Credential{
		Hash:       hex.EncodeToString(key),
		Salt:       hex.EncodeToString(salt),
		Iterations: iterations,
	}, nil
}

// VerifyPassword recomputes the derivation with the stored parameters and
// compares in constant time. A malformed stored record is an error, not a
// mismatch, so callers can distinguish corrupt provisioning from a wrong
// password.
func VerifyPassword(attempt, storedHash, storedSalt string, iterations int) (bool, error) {
	salt, err := hex.DecodeString(storedSalt)
	if err != nil {
		return false, fmt.Errorf("%w: decoding salt: %w", ErrMalformedRecord, err)
	}
	expected, err := hex.DecodeString(storedHash)
	if err != nil {
		return false, fmt.Errorf("%w: decoding hash: %w", ErrMalformedRecord, err)
	}
	if iterations < 1 {
		return false, fmt.Errorf("%w: iteration count %d", ErrMalformedRecord, iterations)
	}

	candidate := pbkdf2.Key([]byte(attempt), salt, iterations, len(expected), sha256.New)

	return subtle.ConstantTimeCompare(expected, candidate) == 1, nil
}

// randomIterations draws a uniform iteration count from the configured range.
func randomIterations() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxIterations-minIterations))
	if err != nil {
		return 0, err
	}
	return minIterations + int(n.Int64()), nil
}
