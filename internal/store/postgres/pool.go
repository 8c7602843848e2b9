// Package postgres implements internal/store's repository contracts on top
// of pgx/v5, grounded on tarsy's pkg/database/client.go: an embedded
// golang-migrate migration set applied via database/sql + the pgx stdlib
// driver, then a pgxpool.Pool used natively for every query (tarsy wraps
// ent over the same *sql.DB; this module has no ORM layer, so the pool is
// used directly instead of being handed to one).
package postgres

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations

	"github.com/arcfable/campaignforge/internal/engineconfig"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationsFS exposes the embedded migration set for postgrestest, which
// needs to point golang-migrate at a schema-scoped connection rather than
// Open's own.
func MigrationsFS() embed.FS { return migrationsFS }

// Store holds the pgx pool; NewFactory builds the uow.Factory over it, and
// each unit of work constructs its repositories over its own transaction.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to Postgres, applies pending migrations, and returns a Store
// ready to back a uow.Factory (see NewFactory).
func Open(ctx context.Context, cfg engineconfig.Database) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	if err := runMigrations(dsn, cfg.Name); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// runMigrations applies every embedded *.up.sql migration using
// golang-migrate, opening its own short-lived database/sql connection since
// golang-migrate does not speak pgxpool.
func runMigrations(dsn, databaseName string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if err != migrate.ErrNoChange {
			return fmt.Errorf("applying migrations: %w", err)
		}
		slog.Info("no pending migrations", "database", databaseName)
		return nil
	}
	slog.Info("migrations applied", "database", databaseName)
	return nil
}
