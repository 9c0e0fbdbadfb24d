// migrate applies or rolls back the auth schema, or prints the applied version.
//
//	go run ./cmd/migrate                  # apply all pending
//	go run ./cmd/migrate -direction down -steps 1
//	go run ./cmd/migrate -version
package main

import (
	"flag"
	"log"

	"perfreview/backend/internal/config"
	"perfreview/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of versions to move; 0 means all")
	showVersion := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *showVersion {
		st, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		switch {
		case st.None:
			log.Println("migrate: no migrations applied")
		case st.Dirty:
			log.Fatalf("migrate: version %d is dirty; fix the schema and force the version", st.Version)
		default:
			log.Printf("migrate: at version %d", st.Version)
		}
		return
	}

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := migrate.Run(cfg.DatabaseURL, dir, *steps); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("migrate: %s complete", dir)
}
