package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"pics-backend/internal/models"
	"pics-backend/internal/repository"
	"pics-backend/internal/util"
)

type CredentialRepository struct {
	client *ScyllaClient
}

func NewCredentialRepository(client *ScyllaClient) *CredentialRepository {
	return &CredentialRepository{client: client}
}

func (r *CredentialRepository) Create(ctx context.Context, identity *models.Identity) error {
	email := normalizeEmail(identity.Email)
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	// IF NOT EXISTS makes the email-uniqueness check part of the insert
	// itself; a lost race surfaces as applied=false, not as a second row.
	// A not-applied result carries the columns of the existing row, so
	// MapScanCAS is used to drain them without caring about their count.
	applied, err := r.client.Session.Query(`
        INSERT INTO identities (
            email, name, role, password_hash, is_active,
            created_at, updated_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		email, identity.Name, identity.Role, identity.PasswordHash,
		identity.IsActive, identity.CreatedAt, identity.UpdatedAt, identity.LastLogin).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("failed to create identity",
			util.String("email", email),
			util.ErrorField(err))
		return fmt.Errorf("failed to create identity: %w", err)
	}
	if !applied {
		return repository.ErrDuplicateEmail
	}

	util.Info("identity created",
		util.String("email", email),
		util.String("role", identity.Role))
	return nil
}

func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity := &models.Identity{}

	query := r.client.Session.Query(r.client.Statements.GetByEmail, normalizeEmail(email)).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&identity.Email, &identity.Name, &identity.Role, &identity.PasswordHash,
		&identity.IsActive, &identity.CreatedAt, &identity.UpdatedAt, &identity.LastLogin)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("failed to get identity by email",
			util.String("email", email),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

func (r *CredentialRepository) FindByEmailRole(ctx context.Context, email, role string) (*models.Identity, error) {
	identity, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity.Role != role {
		return nil, repository.ErrNotFound
	}
	return identity, nil
}

func (r *CredentialRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := r.client.Session.
		Query(r.client.Statements.UpdatePassword, passwordHash, time.Now().UTC(), normalizeEmail(email)).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("failed to update password",
			util.String("email", email),
			util.ErrorField(err))
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *CredentialRepository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	query := r.client.Session.
		Query(r.client.Statements.UpdateLastLogin, at, normalizeEmail(email)).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
