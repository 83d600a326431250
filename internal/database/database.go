package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"           // Registers the postgres driver.
	_ "github.com/mattn/go-sqlite3" // Registers the sqlite3 driver.
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

type Database struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// New opens dsn and applies pending migrations. postgres:// and postgresql://
// DSNs use lib/pq; anything else is a SQLite file path.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Database, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DSN is empty")
	}

	driver := DriverFor(dsn)

	dbFile, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}

	if err = dbFile.PingContext(ctx); err != nil {
		_ = dbFile.Close()

		return nil, fmt.Errorf("ping DB: %w", err)
	}

	if err = migrateUp(ctx, dbFile, driver, log); err != nil {
		_ = dbFile.Close()

		return nil, err
	}

	return &Database{db: dbFile, driver: driver, log: log}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DriverFor names the database/sql driver used for dsn.
func DriverFor(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return driverPostgres
	}

	return driverSQLite
}

func migrateUp(ctx context.Context, dbFile *sql.DB, driver string, log *slog.Logger) error {
	var (
		dbInstance database.Driver
		err        error
	)

	switch driver {
	case driverPostgres:
		dbInstance, err = postgres.WithInstance(dbFile, &postgres.Config{})
	default:
		dbInstance, err = sqlite3.WithInstance(dbFile, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("create DB instance: %w", err)
	}

	srcInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcInstance, driver, dbInstance)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	migrateErr := m.Up()

	version, dirty, versionErr := m.Version()
	fields := []any{
		"driver", driver,
	}

	if versionErr == nil {
		fields = append(fields, "version", version, "dirty", dirty)
	} else if !errors.Is(versionErr, migrate.ErrNilVersion) {
		log.WarnContext(ctx, "Failed to fetch migration version",
			"error", versionErr,
			"driver", driver)
	}

	if migrateErr != nil {
		if !errors.Is(migrateErr, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", migrateErr)
		}

		log.InfoContext(ctx, "No migrations to apply", fields...)
	} else {
		log.InfoContext(ctx, "DB is migrated", fields...)
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *Database) rebind(query string) string {
	if d.driver != driverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
