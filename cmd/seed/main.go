// seed inserts development users for local testing. Run via go run ./cmd/seed.
// Idempotent: users whose external id already exists are left untouched.
package main

import (
	"context"
	"log"
	"time"

	"perfreview/backend/internal/config"
	"perfreview/backend/internal/db"
	userdomain "perfreview/backend/internal/user/domain"
	userrepo "perfreview/backend/internal/user/repository"
)

type devUser struct {
	id, externalID, email, name string
	roles                       []string
}

var devUsers = []devUser{
	{"dev-user-001", "dev|admin", "dev@example.com", "Dev Admin", []string{"employee", "manager", "admin"}},
	{"dev-user-002", "dev|manager", "manager@example.com", "Dev Manager", []string{"employee", "manager"}},
	{"dev-user-003", "dev|employee", "employee@example.com", "Dev Employee", []string{"employee"}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.OpenX(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	n, err := seed(context.Background(), userrepo.NewPostgresRepository(conn), time.Now())
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("seed: created %d users", n)
}

func seed(ctx context.Context, users userrepo.Repository, now time.Time) (int, error) {
	created := 0
	for _, d := range devUsers {
		existing, err := users.GetByExternalID(ctx, d.externalID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			log.Printf("seed: %s exists, skipping", d.email)
			continue
		}
		u, err := userdomain.NewUser(d.id, d.externalID, d.email, d.name, d.roles, now)
		if err != nil {
			return created, err
		}
		if err := users.Create(ctx, u); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
