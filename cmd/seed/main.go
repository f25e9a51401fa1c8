// seed creates development users for local testing.
// Idempotent: users whose email already exists are skipped.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"canny/backend/internal/config"
	"canny/backend/internal/db"
	"canny/backend/internal/security"
	userdomain "canny/backend/internal/user/domain"
	userrepo "canny/backend/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []userdomain.User{
	{ID: "dev-user-001", FullName: "Dev User", Email: "dev@example.com", PhoneNumber: "+15555550100"},
	{ID: "dev-user-002", FullName: "Second Device User", Email: "member@example.com", PhoneNumber: "+15555550101"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	ctx := context.Background()

	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	for _, u := range devUsers {
		u.PasswordHash = passwordHash
		u.CreatedAt, u.UpdatedAt = now, now
		err := users.Create(ctx, &u)
		switch {
		case errors.Is(err, userrepo.ErrEmailTaken):
			log.Printf("%s already exists, skipping", u.Email)
		case err != nil:
			log.Fatalf("create %s: %v", u.Email, err)
		default:
			log.Printf("created %s (password %q)", u.Email, devPassword)
		}
	}
}
