// Package repository defines the credential store contract the auth flows
// depend on. Implementations live in subpackages: scylla for production,
// memory for development and tests.
package repository

import (
	"context"
	"errors"
	"time"

	"pics-backend/internal/models"
)

var (
	// ErrNotFound means no identity matches the lookup.
	ErrNotFound = errors.New("identity not found")

	// ErrDuplicateEmail means an identity with that email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// CredentialRepository owns Identity records. Email is the unique key;
// every mutation goes through here.
type CredentialRepository interface {
	// Create persists a new identity. Returns ErrDuplicateEmail when the
	// email is already taken.
	Create(ctx context.Context, identity *models.Identity) error

	// FindByEmail returns the identity for email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)

	// FindByEmailRole returns the identity only when both email and role
	// match; a role mismatch is indistinguishable from a missing account.
	FindByEmailRole(ctx context.Context, email, role string) (*models.Identity, error)

	// UpdatePassword overwrites the stored password hash for email.
	UpdatePassword(ctx context.Context, email, passwordHash string) error

	// UpdateLastLogin records a successful authentication. Non-critical;
	// callers may log and ignore failures.
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
}
