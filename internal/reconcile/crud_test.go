package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patches(t *testing.T, body string) []Patch {
	t.Helper()
	var out []Patch
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestGridCRUDRoundTrip(t *testing.T) {
	e, _ := newEngine(t, "grid")
	ctx := context.Background()

	created, err := e.Create(ctx, "players", patches(t, `[
		{"id": 77, "name": "Dave", "city": "Oslo", "score": 10},
		{"name": "Eve"}
	]`))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, int64(1), created[0]["id"])
	assert.Equal(t, float64(10), created[0]["score"])
	assert.Equal(t, float64(0), created[0]["percentageWins"])
	assert.Equal(t, int64(2), created[1]["id"])
	assert.Equal(t, float64(0), created[1]["score"])

	updated, err := e.Update(ctx, "players", patches(t, `[{"id": 1, "score": 12}, {"id": 0, "score": 99}, {"id": "x", "score": 1}]`))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, float64(12), updated[0]["score"])
	assert.Equal(t, "Oslo", updated[0]["city"])

	require.NoError(t, e.Delete(ctx, "players", []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`"abc"`), json.RawMessage(`42`)}))

	rows, err := e.Read(ctx, "players")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Eve", rows[0]["name"])
}

func TestGridUpdateOfMissingPlayerFails(t *testing.T) {
	e, _ := newEngine(t, "grid")
	_, err := e.Update(context.Background(), "players", patches(t, `[{"id": 42, "score": 1}]`))
	var missing *MissingRowError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Player with id 42 not found", missing.Error())
}

func TestGridRejectsEmptyPayloads(t *testing.T) {
	e, _ := newEngine(t, "grid")
	ctx := context.Background()

	_, err := e.Create(ctx, "players", nil)
	var input *InputError
	require.True(t, errors.As(err, &input))
	assert.Equal(t, "No players data provided", input.Message)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = e.Update(ctx, "players", []Patch{})
	require.True(t, errors.As(err, &input))
	assert.Equal(t, "No players data provided", input.Message)

	err = e.Delete(ctx, "players", nil)
	require.True(t, errors.As(err, &input))
	assert.Equal(t, "No player ids provided", input.Message)
}

func TestCRUDOnlyServesCRUDBackends(t *testing.T) {
	e, _ := newEngine(t, "scheduler")
	_, err := e.Read(context.Background(), "events")
	assert.ErrorIs(t, err, ErrUnsupported)

	grid, _ := newEngine(t, "grid")
	_, err = grid.Read(context.Background(), "teams")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCRUDErrorMessages(t *testing.T) {
	for op, want := range map[string]string{
		"read":   "Players data could not be read.",
		"create": "Players could not be created.",
		"update": "Players could not be updated.",
		"delete": "Players could not be deleted.",
	} {
		err := &CRUDError{Op: op, Collection: "players", Err: errBoom}
		assert.Equal(t, want, err.Message())
		assert.ErrorIs(t, err, errBoom)
	}
}
