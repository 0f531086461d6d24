package reconcile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

func newEngine(t *testing.T, name string, opts ...Option) (*Engine, store.Store) {
	t.Helper()
	backend, err := schema.Lookup(name)
	require.NoError(t, err)
	st := store.NewMemory(backend)
	e, err := New(backend, st, opts...)
	require.NoError(t, err)
	return e, st
}

func syncBody(t *testing.T, e *Engine, body string) *SyncResponse {
	t.Helper()
	req, err := ParseSyncRequest([]byte(body))
	require.NoError(t, err)
	resp, err := e.Sync(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)
	return resp
}

func scan(t *testing.T, st store.Store, collection string) []store.Record {
	t.Helper()
	tbl, err := st.Table(collection)
	require.NoError(t, err)
	recs, err := tbl.Scan(context.Background())
	require.NoError(t, err)
	return recs
}

func find(t *testing.T, st store.Store, collection string, key store.Key) store.Record {
	t.Helper()
	tbl, err := st.Table(collection)
	require.NoError(t, err)
	rec, err := tbl.Find(context.Background(), key)
	require.NoError(t, err)
	return rec
}

func day(s string) time.Time {
	t, err := schema.ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSyncResolvesPhantomsAcrossCollections(t *testing.T) {
	e, st := newEngine(t, "scheduler")
	resp := syncBody(t, e, `{
		"type": "sync",
		"requestId": 7,
		"assignments": {"added": [{"$PhantomId": "_a1", "eventId": "_e1", "resourceId": "_r1"}]},
		"resources": {"added": [{"$PhantomId": "_r1", "name": "Arnold"}]},
		"events": {"added": [{"$PhantomId": "_e1", "name": "Meeting", "startDate": "2026-01-05T09:00:00"}]}
	}`)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"requestId": 7,
		"events": {"rows": [{"$PhantomId": "_e1", "id": 1}]},
		"resources": {"rows": [{"$PhantomId": "_r1", "id": 1}]},
		"assignments": {"rows": [{"$PhantomId": "_a1", "id": 1}]}
	}`, string(out))

	assignment := find(t, st, "assignments", store.IntKey(1))
	assert.Equal(t, int64(1), assignment["eventId"])
	assert.Equal(t, int64(1), assignment["resourceId"])

	event := find(t, st, "events", store.IntKey(1))
	assert.Equal(t, "Meeting", event["name"])
	assert.Equal(t, false, event["allDay"])
	assert.Equal(t, "day", event["durationUnit"])
	assert.Equal(t, day("2026-01-05T09:00:00"), event["startDate"])
}

func TestSyncEmitsMappingsOnlyForPhantomRows(t *testing.T) {
	e, _ := newEngine(t, "scheduler")
	resp := syncBody(t, e, `{"resources": {"added": [{"name": "A"}, {"phantomId": "_b", "name": "B"}]}}`)
	require.Len(t, resp.Rows["resources"], 1)
	assert.Equal(t, "_b", resp.Rows["resources"][0].PhantomID)
	assert.Equal(t, store.IntKey(2), resp.Rows["resources"][0].ID)

	resp = syncBody(t, e, `{"resources": {"updated": [{"id": 1, "name": "A2"}]}}`)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true}`, string(out))
}

func TestSyncPartialUpdateKeepsUnsentFields(t *testing.T) {
	e, st := newEngine(t, "scheduler")
	syncBody(t, e, `{"events": {"added": [{"$PhantomId": "_e", "name": "Review", "eventColor": "red", "duration": 2}]}}`)
	syncBody(t, e, `{"events": {"updated": [{"id": 1, "name": "Review v2", "eventColor": null}]}}`)

	event := find(t, st, "events", store.IntKey(1))
	assert.Equal(t, "Review v2", event["name"])
	assert.Equal(t, "red", event["eventColor"])
	assert.Equal(t, float64(2), event["duration"])
}

func TestSyncIgnoresInvalidAndMissingKeys(t *testing.T) {
	e, st := newEngine(t, "scheduler")
	syncBody(t, e, `{"events": {"added": [{"name": "Keep"}]}}`)
	syncBody(t, e, `{
		"events": {
			"updated": [{"id": 0, "name": "x"}, {"id": "abc", "name": "y"}, {"id": 99, "name": "z"}],
			"removed": [{"id": -1}, {"id": 99}, {}, {"id": null}]
		},
		"unknown": {"added": [{"name": "ignored"}]}
	}`)

	recs := scan(t, st, "events")
	require.Len(t, recs, 1)
	assert.Equal(t, "Keep", recs[0]["name"])
}

func TestSyncRemoveIsIdempotent(t *testing.T) {
	e, st := newEngine(t, "scheduler")
	syncBody(t, e, `{"events": {"added": [{"name": "A"}, {"name": "B"}]}}`)
	for range 2 {
		syncBody(t, e, `{"events": {"removed": [{"id": 1}]}}`)
		recs := scan(t, st, "events")
		require.Len(t, recs, 1)
		assert.Equal(t, int64(2), recs[0]["id"])
	}
}

func TestSyncClearsDurationWhenDatesMove(t *testing.T) {
	e, st := newEngine(t, "calendar")
	syncBody(t, e, `{"events": {"added": [{"$PhantomId": "_e", "name": "Trip", "startDate": "2026-01-01", "endDate": "2026-01-05", "duration": 3, "durationUnit": "day"}]}}`)

	syncBody(t, e, `{"events": {"updated": [{"id": 1, "startDate": "2026-01-10"}]}}`)
	event := find(t, st, "events", store.IntKey(1))
	assert.Nil(t, event["duration"])
	assert.Equal(t, day("2026-01-10"), event["startDate"])
	assert.Equal(t, day("2026-01-05"), event["endDate"])
	assert.Equal(t, "day", event["durationUnit"])

	syncBody(t, e, `{"events": {"updated": [{"id": 1, "endDate": "2026-01-12", "duration": 2}]}}`)
	event = find(t, st, "events", store.IntKey(1))
	assert.Equal(t, float64(2), event["duration"])

	syncBody(t, e, `{"events": {"updated": [{"id": 1, "name": "Renamed"}]}}`)
	event = find(t, st, "events", store.IntKey(1))
	assert.Equal(t, float64(2), event["duration"])
}

func TestSyncCalendarStringKeyedResources(t *testing.T) {
	e, st := newEngine(t, "calendar")
	resp := syncBody(t, e, `{
		"resources": {"added": [{"$PhantomId": "_r", "name": "Room"}, {"id": "hall", "name": "Hall"}]},
		"events": {"added": [
			{"$PhantomId": "_a", "name": "A", "resourceId": "_r"},
			{"$PhantomId": "_b", "name": "B", "resourceId": "hall"},
			{"$PhantomId": "_c", "name": "C", "resourceId": "legacy"}
		]}
	}`)

	require.Len(t, resp.Rows["resources"], 1)
	generated := resp.Rows["resources"][0].ID
	require.True(t, generated.IsString())
	require.True(t, generated.Valid())

	hall := find(t, st, "resources", store.StringKey("hall"))
	assert.Equal(t, "Hall", hall["name"])

	assert.Equal(t, generated.Value(), find(t, st, "events", store.IntKey(1))["resourceId"])
	assert.Equal(t, "hall", find(t, st, "events", store.IntKey(2))["resourceId"])
	assert.Equal(t, "legacy", find(t, st, "events", store.IntKey(3))["resourceId"])
}

func TestSyncNullClearsOnlyClearableFields(t *testing.T) {
	e, st := newEngine(t, "gantt")
	syncBody(t, e, `{"tasks": {"added": [
		{"$PhantomId": "_p", "name": "Parent"},
		{"$PhantomId": "_c", "name": "Child", "parentId": "_p", "percentDone": 50}
	]}}`)
	child := find(t, st, "tasks", store.IntKey(2))
	require.Equal(t, int64(1), child["parentId"])

	syncBody(t, e, `{"tasks": {"updated": [{"id": 2, "parentId": null, "name": null, "percentDone": null}]}}`)
	child = find(t, st, "tasks", store.IntKey(2))
	assert.Nil(t, child["parentId"])
	assert.Equal(t, "Child", child["name"])
	assert.Equal(t, float64(50), child["percentDone"])
}

func TestSyncRequiredAndDefaultFields(t *testing.T) {
	e, st := newEngine(t, "taskboard")
	syncBody(t, e, `{"tasks": {"added": [{"$PhantomId": "_x"}, {"name": null, "weight": 5}]}}`)

	first := find(t, st, "tasks", store.IntKey(1))
	assert.Equal(t, "", first["name"])
	assert.Equal(t, int64(1), first["weight"])
	assert.Nil(t, first["status"])

	second := find(t, st, "tasks", store.IntKey(2))
	assert.Equal(t, "", second["name"])
	assert.Equal(t, int64(5), second["weight"])

	syncBody(t, e, `{"tasks": {"updated": [{"id": 2, "status": "done"}]}}`)
	second = find(t, st, "tasks", store.IntKey(2))
	assert.Equal(t, "done", second["status"])
	assert.Equal(t, int64(5), second["weight"])
}

type recordingObserver struct {
	mu      sync.Mutex
	events  []RowEvent
	batches []string
}

func (o *recordingObserver) RowApplied(_ context.Context, ev RowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) BatchFinished(_ context.Context, op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.batches = append(o.batches, op+":"+outcome)
}

func (o *recordingObserver) count(op Op) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.events {
		if ev.Op == op {
			n++
		}
	}
	return n
}

func TestSyncCascadesGanttSubtree(t *testing.T) {
	obs := &recordingObserver{}
	e, st := newEngine(t, "gantt", WithObserver(obs))
	syncBody(t, e, `{
		"tasks": {"added": [
			{"$PhantomId": "_a", "name": "A"},
			{"$PhantomId": "_b", "name": "B", "parentId": "_a"},
			{"$PhantomId": "_c", "name": "C", "parentId": "_b"},
			{"$PhantomId": "_d", "name": "D"}
		]},
		"dependencies": {"added": [
			{"$PhantomId": "_x", "fromEvent": "_c", "toEvent": "_d"},
			{"$PhantomId": "_y", "fromEvent": "_d", "toEvent": "_b"}
		]}
	}`)
	require.Len(t, scan(t, st, "dependencies"), 2)

	syncBody(t, e, `{"tasks": {"removed": [{"id": 1}]}}`)

	tasks := scan(t, st, "tasks")
	require.Len(t, tasks, 1)
	assert.Equal(t, "D", tasks[0]["name"])
	assert.Empty(t, scan(t, st, "dependencies"))

	assert.Equal(t, 6, obs.count(OpAdded))
	assert.Equal(t, 1, obs.count(OpRemoved))
	assert.Equal(t, 4, obs.count(OpCascaded))
	assert.Equal(t, []string{"sync:ok", "sync:ok"}, obs.batches)
}

func TestSyncDropsUnresolvablePhantomReferences(t *testing.T) {
	e, st := newEngine(t, "scheduler")
	syncBody(t, e, `{
		"resources": {"added": [{"$PhantomId": "_r", "name": "Arnold"}]},
		"events": {"added": [{"$PhantomId": "_e", "name": "Meeting"}]},
		"assignments": {"added": [{"$PhantomId": "_a", "eventId": "_ghost", "resourceId": "_r"}]}
	}`)

	assignment := find(t, st, "assignments", store.IntKey(1))
	assert.Nil(t, assignment["eventId"])
	assert.Equal(t, int64(1), assignment["resourceId"])

	syncBody(t, e, `{"assignments": {"updated": [{"id": 1, "eventId": 1}]}}`)
	syncBody(t, e, `{"assignments": {"updated": [{"id": 1, "eventId": "_ghost"}]}}`)

	assignment = find(t, st, "assignments", store.IntKey(1))
	assert.Equal(t, int64(1), assignment["eventId"])
	assert.Equal(t, int64(1), assignment["resourceId"])
}

func TestSyncCascadesSchedulerAssignments(t *testing.T) {
	obs := &recordingObserver{}
	e, st := newEngine(t, "scheduler", WithObserver(obs))
	syncBody(t, e, `{
		"resources": {"added": [{"$PhantomId": "_r1", "name": "Arnold"}, {"$PhantomId": "_r2", "name": "Gloria"}]},
		"events": {"added": [{"$PhantomId": "_e1", "name": "Meeting"}, {"$PhantomId": "_e2", "name": "Review"}]},
		"assignments": {"added": [
			{"$PhantomId": "_a1", "eventId": "_e1", "resourceId": "_r1"},
			{"$PhantomId": "_a2", "eventId": "_e2", "resourceId": "_r1"},
			{"$PhantomId": "_a3", "eventId": "_e2", "resourceId": "_r2"}
		]}
	}`)
	require.Len(t, scan(t, st, "assignments"), 3)

	syncBody(t, e, `{"resources": {"removed": [{"id": 1}]}}`)
	assignments := scan(t, st, "assignments")
	require.Len(t, assignments, 1)
	assert.Equal(t, int64(3), assignments[0]["id"])
	assert.Len(t, scan(t, st, "events"), 2)

	syncBody(t, e, `{"events": {"removed": [{"id": 2}]}}`)
	assert.Empty(t, scan(t, st, "assignments"))
	assert.Len(t, scan(t, st, "resources"), 1)

	assert.Equal(t, 2, obs.count(OpRemoved))
	assert.Equal(t, 3, obs.count(OpCascaded))
}

func TestSyncCascadesSchedulerProDependencies(t *testing.T) {
	e, st := newEngine(t, "schedulerpro")
	syncBody(t, e, `{
		"resources": {"added": [{"$PhantomId": "_r", "name": "Arnold"}]},
		"events": {"added": [
			{"$PhantomId": "_e1", "name": "Dig"},
			{"$PhantomId": "_e2", "name": "Pour"},
			{"$PhantomId": "_e3", "name": "Build"}
		]},
		"assignments": {"added": [
			{"$PhantomId": "_a1", "eventId": "_e1", "resourceId": "_r"},
			{"$PhantomId": "_a2", "eventId": "_e2", "resourceId": "_r"}
		]},
		"dependencies": {"added": [
			{"$PhantomId": "_d1", "from": "_e1", "to": "_e2"},
			{"$PhantomId": "_d2", "from": "_e3", "to": "_e1"},
			{"$PhantomId": "_d3", "from": "_e2", "to": "_e3"}
		]}
	}`)
	dep := find(t, st, "dependencies", store.IntKey(1))
	assert.Equal(t, int64(1), dep["from"])
	assert.Equal(t, int64(2), dep["to"])

	syncBody(t, e, `{"events": {"removed": [{"id": 1}]}}`)

	deps := scan(t, st, "dependencies")
	require.Len(t, deps, 1)
	assert.Equal(t, int64(3), deps[0]["id"])
	assignments := scan(t, st, "assignments")
	require.Len(t, assignments, 1)
	assert.Equal(t, int64(2), assignments[0]["eventId"])
	assert.Len(t, scan(t, st, "events"), 2)
	assert.Len(t, scan(t, st, "resources"), 1)
}

var errBoom = errors.New("disk on fire")

// failingStore fails inserts into one collection.
type failingStore struct {
	store.Store
	collection string
}

type failingTable struct {
	store.Table
}

func (f failingStore) Table(collection string) (store.Table, error) {
	t, err := f.Store.Table(collection)
	if err != nil || collection != f.collection {
		return t, err
	}
	return failingTable{t}, nil
}

func (failingTable) Insert(context.Context, store.Key, store.Record) (store.Key, error) {
	return store.Key{}, errBoom
}

func TestSyncFailureEnvelopeKeepsEarlierRows(t *testing.T) {
	backend, err := schema.Lookup("scheduler")
	require.NoError(t, err)
	mem := store.NewMemory(backend)
	obs := &recordingObserver{}
	e, err := New(backend, failingStore{Store: mem, collection: "assignments"}, WithObserver(obs))
	require.NoError(t, err)

	req, err := ParseSyncRequest([]byte(`{
		"requestId": "req-9",
		"events": {"added": [{"$PhantomId": "_e", "name": "E"}]},
		"assignments": {"added": [{"$PhantomId": "_a", "eventId": "_e", "resourceId": 1}]}
	}`))
	require.NoError(t, err)
	resp, err := e.Sync(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, resp)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": false, "requestId": "req-9", "message": "There was an error syncing the data changes."}`, string(out))

	assert.Len(t, scan(t, mem, "events"), 1)
	assert.Empty(t, scan(t, mem, "assignments"))
	assert.Equal(t, []string{"sync:error"}, obs.batches)
}

func TestSyncRejectsMalformedBodiesBeforeWriting(t *testing.T) {
	for name, body := range map[string]string{
		"not json":         `not json`,
		"array body":       `[1, 2]`,
		"change set type":  `{"events": "nope"}`,
		"bad date":         `{"events": {"added": [{"name": "ok"}, {"startDate": true}]}}`,
		"bad reference":    `{"events": {"added": [{"name": "ok"}]}, "assignments": {"added": [{"eventId": {"x": 1}}]}}`,
		"bad update value": `{"events": {"added": [{"name": "ok"}], "updated": [{"id": 1, "allDay": "sometimes"}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			e, st := newEngine(t, "scheduler")
			req, err := ParseSyncRequest([]byte(body))
			if err == nil {
				var resp *SyncResponse
				resp, err = e.Sync(context.Background(), req)
				assert.Nil(t, resp)
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, scan(t, st, "events"))
		})
	}
}

type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) Current(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, nil
}

func (c *counter) Next(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

func TestSyncAdvancesRevision(t *testing.T) {
	e, _ := newEngine(t, "gantt", WithRevisions(&counter{}))
	first := syncBody(t, e, `{"tasks": {"added": [{"name": "A"}]}}`)
	second := syncBody(t, e, `{"tasks": {"updated": [{"id": 1, "name": "B"}]}}`)
	require.NotNil(t, first.Revision)
	require.NotNil(t, second.Revision)
	assert.Equal(t, int64(1), *first.Revision)
	assert.Equal(t, int64(2), *second.Revision)

	snap, err := e.Load(context.Background(), json.RawMessage(`"r"`))
	require.NoError(t, err)
	require.NotNil(t, snap.Revision)
	assert.Equal(t, int64(2), *snap.Revision)

	plain, _ := newEngine(t, "scheduler", WithRevisions(&counter{}))
	resp := syncBody(t, plain, `{"events": {"added": [{"name": "A"}]}}`)
	assert.Nil(t, resp.Revision)
}

func TestSyncRejectsCRUDBackend(t *testing.T) {
	e, _ := newEngine(t, "grid")
	_, err := e.Sync(context.Background(), &SyncRequest{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSyncOverSQLite(t *testing.T) {
	backend, err := schema.Lookup("schedulerpro")
	require.NoError(t, err)
	ctx := context.Background()
	st, err := store.Connect(ctx, store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "pro.sqlite3")}, backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	e, err := New(backend, st)
	require.NoError(t, err)

	resp := syncBody(t, e, `{
		"events": {"added": [
			{"$PhantomId": "_e1", "name": "Pour", "startDate": "2026-03-02T08:00:00"},
			{"$PhantomId": "_e2", "name": "Cure"}
		]},
		"resources": {"added": [{"$PhantomId": "_r", "name": "Crew"}]},
		"assignments": {"added": [{"eventId": "_e1", "resourceId": "_r"}]},
		"dependencies": {"added": [{"$PhantomId": "_d", "from": "_e1", "to": "_e2"}]}
	}`)
	require.Len(t, resp.Rows["dependencies"], 1)

	dep := find(t, st, "dependencies", resp.Rows["dependencies"][0].ID)
	assert.Equal(t, int64(1), dep["from"])
	assert.Equal(t, int64(2), dep["to"])
	assert.Equal(t, "right", dep["fromSide"])
	assert.Equal(t, float64(0), dep["lag"])

	syncBody(t, e, `{"events": {"removed": [{"id": 1}]}}`)
	assert.Empty(t, scan(t, st, "assignments"))
	assert.Empty(t, scan(t, st, "dependencies"))
	assert.Len(t, scan(t, st, "events"), 1)
}
