package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// SQLStore keeps each collection in its own table of a database/sql pool.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	tables  map[string]*sqlTable
}

type sqlTable struct {
	db      *sql.DB
	dialect Dialect
	coll    *schema.Collection
	// selectList is the column list shared by Find and Scan.
	selectList string
}

// NewSQLStore serves the backend's collections from db. The tables must
// already exist, see Migrate.
func NewSQLStore(db *sql.DB, dialect Dialect, backend *schema.Backend) *SQLStore {
	s := &SQLStore{db: db, dialect: dialect, tables: make(map[string]*sqlTable, len(backend.Collections))}
	for _, c := range backend.Collections {
		cols := []string{quote("id")}
		for _, f := range c.Fields {
			cols = append(cols, quote(f.Column))
		}
		s.tables[c.Name] = &sqlTable{db: db, dialect: dialect, coll: c, selectList: strings.Join(cols, ", ")}
	}
	return s
}

func (s *SQLStore) Table(collection string) (Table, error) {
	t, ok := s.tables[collection]
	if !ok {
		return nil, errors.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (t *sqlTable) Find(ctx context.Context, key Key) (Record, error) {
	query := "SELECT " + t.selectList + " FROM " + quote(t.coll.Table) + " WHERE " + quote("id") + " = " + t.dialect.placeholder(1)
	rows, err := t.db.QueryContext(ctx, query, key.Value())
	if err != nil {
		return nil, errors.Wrapf(err, "find %s %s", t.coll.Name, key)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrapf(err, "find %s %s", t.coll.Name, key)
		}
		return nil, ErrNotFound
	}
	return t.scanRow(rows)
}

func (t *sqlTable) Insert(ctx context.Context, key Key, rec Record) (Key, error) {
	if err := t.checkFields(rec); err != nil {
		return Key{}, err
	}
	var cols, marks []string
	var args []any
	if key.Valid() {
		cols = append(cols, quote("id"))
		args = append(args, key.Value())
		marks = append(marks, t.dialect.placeholder(len(args)))
	} else if t.coll.KeyMode == schema.ClientKey {
		return Key{}, errors.Errorf("%s: insert requires a key", t.coll.Name)
	}
	for _, f := range t.coll.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		cols = append(cols, quote(f.Column))
		args = append(args, t.dialect.bind(v))
		marks = append(marks, t.dialect.placeholder(len(args)))
	}

	query := "INSERT INTO " + quote(t.coll.Table)
	if len(cols) == 0 {
		query += " DEFAULT VALUES"
	} else {
		query += " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	}
	query += " RETURNING " + quote("id")

	var id any
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return Key{}, errors.Wrapf(err, "insert %s", t.coll.Name)
	}
	v, err := t.coll.KeyKind().Normalize(id)
	if err != nil {
		return Key{}, errors.Wrapf(err, "insert %s: returned key", t.coll.Name)
	}
	assigned, _ := KeyOf(v)
	return assigned, nil
}

func (t *sqlTable) Update(ctx context.Context, key Key, changes Record) error {
	if err := t.checkFields(changes); err != nil {
		return err
	}
	if len(changes) == 0 {
		_, err := t.Find(ctx, key)
		return err
	}
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		f, _ := t.coll.Field(name)
		args = append(args, t.dialect.bind(changes[name]))
		sets = append(sets, quote(f.Column)+" = "+t.dialect.placeholder(len(args)))
	}
	args = append(args, key.Value())
	query := "UPDATE " + quote(t.coll.Table) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + quote("id") + " = " + t.dialect.placeholder(len(args))

	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s %s", t.coll.Name, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update %s %s", t.coll.Name, key)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTable) Delete(ctx context.Context, key Key) error {
	query := "DELETE FROM " + quote(t.coll.Table) + " WHERE " + quote("id") + " = " + t.dialect.placeholder(1)
	res, err := t.db.ExecContext(ctx, query, key.Value())
	if err != nil {
		return errors.Wrapf(err, "delete %s %s", t.coll.Name, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete %s %s", t.coll.Name, key)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTable) Scan(ctx context.Context) ([]Record, error) {
	query := "SELECT " + t.selectList + " FROM " + quote(t.coll.Table) + " ORDER BY " + quote("id")
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", t.coll.Name)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := t.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", t.coll.Name)
	}
	return out, nil
}

func (t *sqlTable) KeysWhere(ctx context.Context, field string, value any) ([]Key, error) {
	f, ok := t.coll.Field(field)
	if !ok {
		return nil, errors.Errorf("%s: unknown field %q", t.coll.Name, field)
	}
	query := "SELECT " + quote("id") + " FROM " + quote(t.coll.Table) + " WHERE " + quote(f.Column) + " = " + t.dialect.placeholder(1) +
		" ORDER BY " + quote("id")
	rows, err := t.db.QueryContext(ctx, query, t.dialect.bind(value))
	if err != nil {
		return nil, errors.Wrapf(err, "select %s by %s", t.coll.Name, field)
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "select %s by %s", t.coll.Name, field)
		}
		v, err := t.coll.KeyKind().Normalize(id)
		if err != nil {
			return nil, errors.Wrapf(err, "select %s by %s", t.coll.Name, field)
		}
		k, _ := KeyOf(v)
		keys = append(keys, k)
	}
	return keys, errors.Wrapf(rows.Err(), "select %s by %s", t.coll.Name, field)
}

func (t *sqlTable) scanRow(rows *sql.Rows) (Record, error) {
	values := make([]any, len(t.coll.Fields)+1)
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrapf(err, "scan %s row", t.coll.Name)
	}
	rec := make(Record, len(values))
	id, err := t.coll.KeyKind().Normalize(values[0])
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s row: id", t.coll.Name)
	}
	rec["id"] = id
	for i, f := range t.coll.Fields {
		v, err := f.Kind.Normalize(values[i+1])
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s row: %s", t.coll.Name, f.Name)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func (t *sqlTable) checkFields(rec Record) error {
	for name := range rec {
		if _, ok := t.coll.Field(name); !ok {
			return errors.Errorf("%s: unknown field %q", t.coll.Name, name)
		}
	}
	return nil
}
