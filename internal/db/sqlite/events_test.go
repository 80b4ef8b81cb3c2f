package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	es := NewEventStore(store)
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestEventStore_InsertAndRecent(t *testing.T) {
	es := newTestEventStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i, name := range []string{"UserPromptSubmit", "PreToolUse", "Stop"} {
		_, err := es.Insert(ctx, name, "sess", "/work", map[string]any{"hook_event_name": name, "n": i}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	all, err := es.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "UserPromptSubmit", all[0].EventName)
	assert.Equal(t, "Stop", all[2].EventName)
	assert.Equal(t, "sess", all[0].SessionID)
	assert.Equal(t, "/work", all[0].CWD)
	assert.EqualValues(t, 2, all[2].Payload["n"])
	assert.Equal(t, base.Add(2*time.Second).UnixMilli(), all[2].CreatedAt.UnixMilli())

	last, err := es.Recent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "PreToolUse", last[0].EventName)

	stops, err := es.Recent(ctx, "Stop", 10)
	require.NoError(t, err)
	require.Len(t, stops, 1)
}

func TestEventStore_Prune(t *testing.T) {
	es := newTestEventStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := es.Insert(ctx, "Stop", "", "", map[string]any{"i": i}, time.Now())
		require.NoError(t, err)
	}

	removed, err := es.Prune(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	n, err := es.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := es.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, left[0].Payload["i"])
}

func TestNewStore_FileAndMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	store, err := NewStore(StoreConfig{Path: path, WALMode: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(StoreConfig{Path: path, WALMode: true})
	require.NoError(t, err)
	defer store.Close()

	version, err := schemaVersion(context.Background(), store.db)
	require.NoError(t, err)
	assert.Equal(t, len(schema), version)
	assert.Equal(t, path, store.Path())
}

func TestStore_ClosedQueries(t *testing.T) {
	store, err := NewStore(StoreConfig{Path: MemoryPath})
	require.NoError(t, err)
	es := NewEventStore(store)
	require.NoError(t, es.Close())
	require.NoError(t, es.Close())

	_, err = es.Count(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
