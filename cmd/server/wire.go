package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"perfreview/backend/internal/config"
	"perfreview/backend/internal/db"
	"perfreview/backend/internal/health"
	"perfreview/backend/internal/security"

	auditrepo "perfreview/backend/internal/audit/repository"
	refreshrepo "perfreview/backend/internal/refreshtoken/repository"
	"perfreview/backend/internal/revocation"
	sessionrepo "perfreview/backend/internal/session/repository"
	userrepo "perfreview/backend/internal/user/repository"
)

// stores is the persistence chosen from config: Postgres when DATABASE_URL is set, memory otherwise.
type stores struct {
	db          *sqlx.DB
	users       userrepo.Repository
	sessions    sessionrepo.Repository
	records     refreshrepo.Repository
	audits      auditrepo.Repository
	revocations security.RevocationStore
	cache       health.Pinger
	closers     []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("server: close: %v", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.DatabaseURL != "" {
		conn, err := db.OpenX(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		s.db = conn
		s.closers = append(s.closers, conn.Close)
		s.users = userrepo.NewPostgresRepository(conn)
		s.sessions = sessionrepo.NewPostgresRepository(conn)
		s.records = refreshrepo.NewPostgresRepository(conn)
		s.audits = auditrepo.NewPostgresRepository(conn)
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("database: DATABASE_URL is required when APP_ENV=production")
		}
		log.Println("server: DATABASE_URL not set; using in-memory repositories")
		s.users = userrepo.NewMemoryRepository()
		s.sessions = sessionrepo.NewMemoryRepository()
		s.records = refreshrepo.NewMemoryRepository()
		s.audits = auditrepo.NewMemoryRepository()
	}

	switch strings.ToLower(cfg.RevocationBackend) {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		store := revocation.NewRedisStore(client)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.revocations = store
		s.cache = health.PingFunc(store.Ping)
	case "postgres":
		if s.db == nil {
			s.Close()
			return nil, errors.New("revocation: postgres backend requires DATABASE_URL")
		}
		s.revocations = revocation.NewPostgresStore(s.db)
	default:
		s.revocations = revocation.NewMemoryStore()
	}
	return s, nil
}

// signingKeys prefers PEM private keys and falls back to HMAC secrets. Outside production a
// missing configuration gets random per-process secrets, which invalidates tokens on restart.
func signingKeys(cfg *config.Config) (access, refresh security.SigningKey, err error) {
	if cfg.JWTAccessPrivateKey != "" || cfg.JWTRefreshPrivateKey != "" {
		if access, err = security.NewAsymmetricKey(cfg.JWTAccessPrivateKey); err != nil {
			return access, refresh, fmt.Errorf("access key: %w", err)
		}
		if refresh, err = security.NewAsymmetricKey(cfg.JWTRefreshPrivateKey); err != nil {
			return access, refresh, fmt.Errorf("refresh key: %w", err)
		}
		return access, refresh, nil
	}
	accessSecret, refreshSecret := cfg.JWTAccessSecret, cfg.JWTRefreshSecret
	if accessSecret == "" && refreshSecret == "" && !cfg.IsProduction() {
		log.Println("server: no JWT keys configured; generating ephemeral secrets")
		accessSecret, refreshSecret = security.GenerateVerifier(), security.GenerateVerifier()
	}
	if access, err = security.NewHMACKey([]byte(accessSecret)); err != nil {
		return access, refresh, fmt.Errorf("access secret: %w", err)
	}
	if refresh, err = security.NewHMACKey([]byte(refreshSecret)); err != nil {
		return access, refresh, fmt.Errorf("refresh secret: %w", err)
	}
	return access, refresh, nil
}
