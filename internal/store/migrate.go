package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// Statements returns the DDL that creates the backend's tables and indexes.
func Statements(dialect Dialect, backend *schema.Backend) []string {
	var stmts []string
	for _, c := range backend.Collections {
		stmts = append(stmts, dialect.createTable(c))
		stmts = append(stmts, dialect.createIndexes(c)...)
	}
	return stmts
}

// Version identifies a backend's generated schema so a changed definition is
// applied again.
func Version(dialect Dialect, backend *schema.Backend) string {
	sum := sha1.Sum([]byte(strings.Join(Statements(dialect, backend), ";\n")))
	return backend.Name + "_" + hex.EncodeToString(sum[:6])
}

// Migrate creates the backend's tables in one transaction and records the
// schema version in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, backend *schema.Backend) error {
	if err := ensureMigrationsTable(ctx, db, dialect); err != nil {
		return err
	}

	version := Version(dialect, backend)
	if migrated, err := isMigrated(ctx, db, dialect, version); err != nil {
		return err
	} else if migrated {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin migration tx %s", version)
	}

	for _, stmt := range Statements(dialect, backend) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "execute migration %s", version)
		}
	}

	record := `INSERT INTO schema_migrations(version) VALUES(` + dialect.placeholder(1) + `)`
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "record migration %s", version)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit migration %s", version)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB, dialect Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at `+dialect.appliedAt+`
		)
	`)
	if err != nil {
		return errors.Wrap(err, "ensure schema_migrations")
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, dialect Dialect, version string) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version=` + dialect.placeholder(1)
	if err := db.QueryRowContext(ctx, query, version).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "check migration %s", version)
	}
	return n > 0, nil
}
