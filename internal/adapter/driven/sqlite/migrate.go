package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// journalMigrationsTable records applied journal migrations. It is named so
// the journal can share a database file with other tools.
const journalMigrationsTable = "keyhold_audit_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtyJournal is returned when a previous journal migration stopped
// halfway and the schema needs manual repair.
var ErrDirtyJournal = errors.New("audit journal schema is dirty")

// RunMigrations brings the audit journal schema up to date and returns the
// resulting schema version. It is safe to run on every startup.
func RunMigrations(db *sql.DB) (uint, error) {
	m, err := newJournalMigrator(db)
	if err != nil {
		return 0, err
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return 0, ErrDirtyJournal
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate audit journal: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read audit journal schema version: %w", err)
	}
	return version, nil
}

func newJournalMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open audit journal migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: journalMigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit journal migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("create audit journal migrator: %w", err)
	}
	return m, nil
}
