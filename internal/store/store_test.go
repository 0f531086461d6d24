package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

func mustBackend(t *testing.T, name string) *schema.Backend {
	t.Helper()
	b, err := schema.Lookup(name)
	require.NoError(t, err)
	return b
}

func openSQLite(t *testing.T, backend *schema.Backend) Store {
	t.Helper()
	ctx := context.Background()
	st, err := Connect(ctx, Options{
		Driver:         "sqlite",
		DSN:            filepath.Join(t.TempDir(), "test.sqlite3"),
		ConnectTimeout: 5 * time.Second,
	}, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// storeFactories runs every conformance test against each implementation.
func storeFactories() map[string]func(*testing.T, *schema.Backend) Store {
	return map[string]func(*testing.T, *schema.Backend) Store{
		"memory": func(_ *testing.T, b *schema.Backend) Store { return NewMemory(b) },
		"sqlite": openSQLite,
	}
}

func TestTableRoundTrip(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "scheduler"))
			events, err := st.Table("events")
			require.NoError(t, err)

			start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
			key, err := events.Insert(ctx, Key{}, Record{
				"name":           "Kickoff",
				"startDate":      start,
				"duration":       3.0,
				"allDay":         true,
				"exceptionDates": json.RawMessage(`["2026-01-06"]`),
			})
			require.NoError(t, err)
			assert.True(t, key.Valid())
			assert.False(t, key.IsString())

			rec, err := events.Find(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "Kickoff", rec["name"])
			assert.Equal(t, key.Value(), rec["id"])
			assert.True(t, start.Equal(rec["startDate"].(time.Time)))
			assert.Equal(t, 3.0, rec["duration"])
			assert.Equal(t, true, rec["allDay"])
			assert.JSONEq(t, `["2026-01-06"]`, string(rec["exceptionDates"].(json.RawMessage)))
			assert.Nil(t, rec["endDate"])
		})
	}
}

func TestTableUpdateIsPartial(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "scheduler"))
			events, err := st.Table("events")
			require.NoError(t, err)

			key, err := events.Insert(ctx, Key{}, Record{"name": "A", "cls": "x", "duration": 2.0})
			require.NoError(t, err)

			require.NoError(t, events.Update(ctx, key, Record{"name": "B", "duration": nil}))
			rec, err := events.Find(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "B", rec["name"])
			assert.Equal(t, "x", rec["cls"])
			assert.Nil(t, rec["duration"])
		})
	}
}

func TestTableMissingRows(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "scheduler"))
			events, err := st.Table("events")
			require.NoError(t, err)

			_, err = events.Find(ctx, IntKey(99))
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, events.Update(ctx, IntKey(99), Record{"name": "x"}), ErrNotFound)
			assert.ErrorIs(t, events.Update(ctx, IntKey(99), Record{}), ErrNotFound)
			assert.ErrorIs(t, events.Delete(ctx, IntKey(99)), ErrNotFound)
		})
	}
}

func TestTableKeepsFractionalSeconds(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "scheduler"))
			events, err := st.Table("events")
			require.NoError(t, err)

			start := time.Date(2026, 1, 10, 10, 0, 0, 250_000_000, time.UTC)
			key, err := events.Insert(ctx, Key{}, Record{"name": "standup", "startDate": start})
			require.NoError(t, err)

			rec, err := events.Find(ctx, key)
			require.NoError(t, err)
			got, ok := rec["startDate"].(time.Time)
			require.True(t, ok, "startDate is %T", rec["startDate"])
			assert.True(t, start.Equal(got), "got %s", got)
		})
	}
}

func TestTableDeleteScanAndKeysWhere(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "scheduler"))
			assignments, err := st.Table("assignments")
			require.NoError(t, err)

			a1, err := assignments.Insert(ctx, Key{}, Record{"eventId": int64(1), "resourceId": int64(7)})
			require.NoError(t, err)
			a2, err := assignments.Insert(ctx, Key{}, Record{"eventId": int64(1), "resourceId": int64(8)})
			require.NoError(t, err)
			_, err = assignments.Insert(ctx, Key{}, Record{"eventId": int64(2), "resourceId": int64(7)})
			require.NoError(t, err)

			keys, err := assignments.KeysWhere(ctx, "eventId", int64(1))
			require.NoError(t, err)
			assert.Equal(t, []Key{a1, a2}, keys)

			require.NoError(t, assignments.Delete(ctx, a1))
			rows, err := assignments.Scan(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, a2.Value(), rows[0]["id"])

			_, err = assignments.KeysWhere(ctx, "bogus", 1)
			require.Error(t, err)
		})
	}
}

func TestClientKeyedTable(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "calendar"))
			resources, err := st.Table("resources")
			require.NoError(t, err)

			_, err = resources.Insert(ctx, Key{}, Record{"name": "no key"})
			require.Error(t, err)

			key, err := resources.Insert(ctx, StringKey("room-1"), Record{"name": "Room 1"})
			require.NoError(t, err)
			assert.Equal(t, StringKey("room-1"), key)

			_, err = resources.Insert(ctx, StringKey("room-1"), Record{"name": "again"})
			require.Error(t, err)

			rec, err := resources.Find(ctx, StringKey("room-1"))
			require.NoError(t, err)
			assert.Equal(t, "room-1", rec["id"])
		})
	}
}

func TestUnknownTableAndField(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, mustBackend(t, "grid"))
			_, err := st.Table("events")
			require.Error(t, err)

			players, err := st.Table("players")
			require.NoError(t, err)
			_, err = players.Insert(ctx, Key{}, Record{"nickname": "x"})
			require.Error(t, err)
		})
	}
}

func TestKeyJSON(t *testing.T) {
	out, err := json.Marshal([]Key{IntKey(4), StringKey("r1")})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"r1"]`, string(out))
	assert.False(t, IntKey(0).Valid())
	assert.False(t, StringKey("").Valid())
	assert.False(t, Key{}.Valid())
}
