package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// Dialect holds the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	// numbered placeholders ($1) instead of ?
	numbered  bool
	types     map[schema.Kind]string
	serialKey string
	stringKey string
	appliedAt string
	timeText  bool
}

var (
	// Postgres uses the pgx database/sql driver.
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "pgx",
		numbered: true,
		types: map[schema.Kind]string{
			schema.String: "TEXT",
			schema.Int:    "BIGINT",
			schema.Float:  "DOUBLE PRECISION",
			schema.Bool:   "BOOLEAN",
			schema.Time:   "TIMESTAMP",
			schema.JSON:   "TEXT",
		},
		serialKey: "BIGSERIAL PRIMARY KEY",
		stringKey: "TEXT PRIMARY KEY",
		appliedAt: "TIMESTAMPTZ NOT NULL DEFAULT NOW()",
	}

	// SQLite uses the pure Go modernc driver.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		types: map[schema.Kind]string{
			schema.String: "TEXT",
			schema.Int:    "INTEGER",
			schema.Float:  "REAL",
			schema.Bool:   "INTEGER",
			schema.Time:   "TEXT",
			schema.JSON:   "TEXT",
		},
		serialKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
		stringKey: "TEXT PRIMARY KEY",
		appliedAt: "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP",
		timeText:  true,
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, errors.Errorf("unsupported sql dialect %q", name)
	}
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d Dialect) keyColumn(mode schema.KeyMode) string {
	if mode == schema.ClientKey {
		return d.stringKey
	}
	return d.serialKey
}

// bind converts a canonical value to a driver argument.
func (d Dialect) bind(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if d.timeText {
			return x.Format(schema.StoredTimeLayout)
		}
		return x
	case json.RawMessage:
		return string(x)
	}
	return v
}

// createTable returns the DDL for one collection.
func (d Dialect) createTable(c *schema.Collection) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quote(c.Table))
	b.WriteString(" (\n\t")
	b.WriteString(quote("id"))
	b.WriteByte(' ')
	b.WriteString(d.keyColumn(c.KeyMode))
	for _, f := range c.Fields {
		b.WriteString(",\n\t")
		b.WriteString(quote(f.Column))
		b.WriteByte(' ')
		b.WriteString(d.types[f.Kind])
	}
	b.WriteString("\n)")
	return b.String()
}

// createIndexes returns one index per reference column.
func (d Dialect) createIndexes(c *schema.Collection) []string {
	var stmts []string
	for _, f := range c.Refs() {
		name := "idx_" + c.Table + "_" + f.Column
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+quote(name)+" ON "+quote(c.Table)+" ("+quote(f.Column)+")")
	}
	return stmts
}
