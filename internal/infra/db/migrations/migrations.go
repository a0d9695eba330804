package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Run opens a short-lived database/sql connection for golang-migrate and
// applies every pending migration. The application itself talks to Postgres
// through pgx; this handle is closed before returning.
func Run(ctx context.Context, databaseURL string, logger *zerolog.Logger) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("migrations: open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("migrations: ping database: %w", err)
	}
	return Up(db, logger)
}

// Up applies all pending migrations. Calling it on an up-to-date schema is a no-op.
func Up(db *sql.DB, logger *zerolog.Logger) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	current := uint(0)
	if v, dirty, verr := m.Version(); verr == nil {
		current = v
		if dirty {
			return fmt.Errorf("migrations: schema version %d is dirty; fix it manually", v)
		}
	} else if !errors.Is(verr, migrate.ErrNilVersion) {
		logger.Warn().Err(verr).Msg("migrations: unable to determine current version")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Uint("version", current).Msg("migrations: schema is up to date")
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		logger.Info().Uint("from", current).Uint("to", v).Msg("migrations: applied")
	}
	return nil
}

// Down rolls back every migration. Used by tests and the seed tool's reset flag.
func Down(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: down: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}
	src, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return m, nil
}
