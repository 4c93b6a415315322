// Package challenge defines the single-use OTP challenge store shared by
// the login, jailer-provisioning, and password-reset flows.
package challenge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"pics-backend/internal/models"
)

var (
	// ErrNotFound means no live challenge exists for the key.
	ErrNotFound = errors.New("challenge not found")

	// ErrExpired means a challenge existed but its TTL had elapsed; the
	// entry is removed as a side effect. Callers use the distinction to
	// tell the user to request a new code.
	ErrExpired = errors.New("challenge expired")

	// ErrMismatch means the provided secret did not match. The challenge
	// stays live so the user can retry within the attempt budget.
	ErrMismatch = errors.New("challenge secret mismatch")
)

// Store is the contract for a keyed, TTL'd, single-use-secret store.
// Implementations must provide atomic check-then-act semantics per key:
// of two concurrent Consume calls with the correct secret, exactly one
// wins and the other observes ErrNotFound.
type Store interface {
	// Issue generates a fresh secret, stores it under key with the given
	// TTL, and returns it. Any existing entry for key is overwritten.
	Issue(ctx context.Context, key string, payload models.ChallengePayload, ttl time.Duration) (string, error)

	// Peek returns the live challenge for key without consuming it.
	Peek(ctx context.Context, key string) (*models.Challenge, error)

	// Consume verifies secret against the entry for key. On a match the
	// entry is removed and returned. On ErrExpired the entry is removed;
	// on ErrMismatch it is kept.
	Consume(ctx context.Context, key, secret string) (*models.Challenge, error)

	// Invalidate removes the entry for key, if any.
	Invalidate(ctx context.Context, key string) error
}

// Key namespaces for the three flows sharing one store. A login OTP and a
// reset OTP for the same email must not collide.
const (
	KeyPrefixLogin  = "login:"
	KeyPrefixJailer = "jailer:"
	KeyPrefixReset  = "reset:"
)

const (
	secretMin    = 100000
	secretMax    = 999999
	SecretLength = 6
)

// GenerateSecret returns a uniformly random 6-digit code in
// [100000, 999999], so it never needs zero padding.
func GenerateSecret() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(secretMax-secretMin+1))
	if err != nil {
		return "", fmt.Errorf("generating otp secret: %w", err)
	}
	return fmt.Sprintf("%d", secretMin+n.Int64()), nil
}

// SecretEqual compares two secrets in constant time. Unequal lengths are
// rejected up front; equal-length comparison never short-circuits, so
// response timing does not reveal how many leading digits matched.
func SecretEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
