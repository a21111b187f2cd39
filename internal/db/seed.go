package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/davmie/userbase/internal/models"
	"github.com/davmie/userbase/internal/repo"
	"golang.org/x/crypto/bcrypt"
)

// Seed credentials for the bootstrap admin. Meant for dev and first-run
// setups; change the password immediately in anything public.
const (
	seedAdminUsername = "admin"
	seedAdminEmail    = "admin@example.com"
	seedAdminPassword = "Admin123!"
)

// SeedAdmin inserts the bootstrap admin account when the store is empty.
// A non-empty store is left untouched.
func SeedAdmin(ctx context.Context, users *repo.UserRepo) error {
	count, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := &models.User{
		Username:     seedAdminUsername,
		Email:        seedAdminEmail,
		PasswordHash: string(hash),
		FirstName:    "Admin",
		LastName:     "User",
		IsActive:     true,
		Roles:        []string{models.RoleAdmin},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := users.Create(ctx, admin); err != nil {
		return err
	}
	slog.Info("seeded bootstrap admin", "username", seedAdminUsername)
	return nil
}
