package main

import (
	"errors"
	"flag"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/bonafide55/shop-api/internal/db"
	"github.com/bonafide55/shop-api/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	down := flag.Bool("down", false, "roll back one migration")
	flag.Parse()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	m, err := db.NewMigrate(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrations")
	}
	defer m.Close()

	if *down {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("migrate down")
		}
	} else if err := db.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("migrate up")
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
}
