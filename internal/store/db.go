package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// Open connects to the database and retries the first ping until
// connectTimeout elapses.
func Open(ctx context.Context, dialect Dialect, dsn string, connectTimeout time.Duration) (*sql.DB, error) {
	if dialect.Name == SQLite.Name {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	if dialect.Name == SQLite.Name {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	ping := func() error {
		return db.PingContext(ctx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping db")
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Options selects and configures a Store implementation.
type Options struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// Connect opens the configured store for the backend and, for SQL drivers,
// creates its tables.
func Connect(ctx context.Context, opts Options, backend *schema.Backend) (Store, error) {
	if opts.Driver == "memory" {
		return NewMemory(backend), nil
	}
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == SQLite.Name && opts.DSN != ":memory:" && !strings.HasPrefix(opts.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}
	db, err := Open(ctx, dialect, opts.DSN, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, dialect, backend); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect, backend), nil
}
