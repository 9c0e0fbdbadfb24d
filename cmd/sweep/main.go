// sweep deletes expired refresh token records, sessions and revoked jtis. It runs once, or every
// -interval (SWEEP_INTERVAL) until interrupted. Requires DATABASE_URL.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perfreview/backend/internal/config"
	"perfreview/backend/internal/db"
	refreshrepo "perfreview/backend/internal/refreshtoken/repository"
	"perfreview/backend/internal/revocation"
	sessionrepo "perfreview/backend/internal/session/repository"
)

type sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type revocationSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	interval := flag.Duration("interval", cfg.SweepInterval(), "repeat every interval; 0 runs once")
	flag.Parse()

	conn, err := db.OpenX(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("sweep: database: %v", err)
	}
	defer conn.Close()

	records := refreshrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	revoked := revocation.NewPostgresStore(conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *interval <= 0 {
		if err := runOnce(ctx, records, sessions, revoked); err != nil {
			log.Fatalf("sweep: %v", err)
		}
		return
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if err := runOnce(ctx, records, sessions, revoked); err != nil {
			log.Printf("sweep: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("sweep: stopped")
			return
		case <-ticker.C:
		}
	}
}

// runOnce deletes refresh records before sessions so no record outlives its session row.
func runOnce(ctx context.Context, records, sessions sweeper, revoked revocationSweeper) error {
	now := time.Now().UTC()
	nRecords, err := records.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	nSessions, err := sessions.DeleteExpired(ctx, now)
	if err != nil {
		return err
	}
	nRevoked, err := revoked.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	log.Printf("sweep: removed %d refresh tokens, %d sessions, %d revoked jtis", nRecords, nSessions, nRevoked)
	return nil
}
