// Package seed bootstraps the primary administrator account so a fresh
// deployment has someone who can sign in and provision jailers.
package seed

import (
	"context"
	"errors"
	"fmt"

	"pics-backend/internal/config"
	"pics-backend/internal/hashing"
	"pics-backend/internal/models"
	"pics-backend/internal/repository"
	"pics-backend/internal/util"
)

// SeedAdmin creates the Admin identity from ADMIN_EMAIL/ADMIN_PASSWORD
// when it does not exist yet. Rerunning against a seeded store is a
// no-op; unset credentials skip seeding entirely.
func SeedAdmin(ctx context.Context, identities repository.CredentialRepository, hasher *hashing.Hasher, cfg config.AdminSeedConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		util.Warn("admin seed credentials not configured, skipping seeding")
		return nil
	}

	if _, err := identities.FindByEmail(ctx, cfg.Email); err == nil {
		util.Debug("admin identity already present", util.String("email", cfg.Email))
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check for admin identity: %w", err)
	}

	passwordHash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	err = identities.Create(ctx, &models.Identity{
		Name:         "Primary Administrator",
		Email:        cfg.Email,
		Role:         models.RoleAdmin,
		PasswordHash: passwordHash,
		IsActive:     true,
	})
	if err != nil {
		// Another instance may have seeded between the check and here.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("failed to create admin identity: %w", err)
	}

	util.Info("admin identity seeded", util.String("email", cfg.Email))
	return nil
}
