// seed bootstraps the first admin user from SEED_ADMIN_EMAIL and
// SEED_ADMIN_PASSWORD. Idempotent: an existing user with that email is left
// untouched.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"costing-api/backend/internal/config"
	"costing-api/backend/internal/db"
	"costing-api/backend/internal/security"
	userdomain "costing-api/backend/internal/user/domain"
	userrepo "costing-api/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fail("DATABASE_URL is not set")
	}
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		fail("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		fail("db open: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(database)

	existing, err := users.GetByEmail(ctx, cfg.SeedAdminEmail)
	if err != nil {
		fail("lookup: %v", err)
	}
	if existing != nil {
		fmt.Printf("admin %s already exists\n", cfg.SeedAdminEmail)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(cfg.SeedAdminPassword))
	if err != nil {
		fail("hash: %v", err)
	}
	now := time.Now().UTC()
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        cfg.SeedAdminEmail,
		PasswordHash: hash,
		Role:         userdomain.RoleAdmin,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		fail("create: %v", err)
	}
	fmt.Printf("created admin %s (%s)\n", cfg.SeedAdminEmail, admin.ID)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
