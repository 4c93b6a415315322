// Package memory holds an in-process CredentialRepository used for local
// development and tests. Not suitable for anything that must survive a
// restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"pics-backend/internal/models"
	"pics-backend/internal/repository"
)

type IdentityRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*models.Identity
}

func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		byEmail: make(map[string]*models.Identity),
	}
}

func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	email := normalize(identity.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return repository.ErrDuplicateEmail
	}

	stored := *identity
	stored.Email = email
	r.byEmail[email] = &stored
	return nil
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byEmail[normalize(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *identity
	return &out, nil
}

func (r *IdentityRepository) FindByEmailRole(ctx context.Context, email, role string) (*models.Identity, error) {
	identity, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.Role != role {
		return nil, repository.ErrNotFound
	}
	return identity, nil
}

func (r *IdentityRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byEmail[normalize(email)]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byEmail[normalize(email)]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LastLogin = &at
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
