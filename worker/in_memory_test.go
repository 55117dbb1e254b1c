package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
)

func TestInMemoryStore_RecordRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	record := &core.WorkerRecord{
		ID:        util.NewID(),
		SessionID: "s1",
		Type:      "planner",
		Config:    map[string]any{"depth": 2},
		Status:    core.WorkerStatusRegistered,
		Created:   time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, record))

	started := time.Now().UTC()
	record.Status = core.WorkerStatusRunning
	record.Started = &started
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, core.WorkerStatusRunning, got.Status)
	require.NotNil(t, got.Started)

	_, err = store.Get(ctx, "missing")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestInMemoryStore_ListAndClear(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, typ := range []string{"planner", "searcher", "writer"} {
		require.NoError(t, store.Save(ctx, &core.WorkerRecord{
			ID:        util.NewID(),
			SessionID: "s1",
			Type:      typ,
			Status:    core.WorkerStatusRegistered,
			Created:   base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, store.Save(ctx, &core.WorkerRecord{
		ID:        util.NewID(),
		SessionID: "s2",
		Type:      "planner",
		Status:    core.WorkerStatusRegistered,
		Created:   base,
	}))

	records, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "planner", records[0].Type, "list must be in creation order")

	require.NoError(t, store.Clear(ctx, "s1"))

	records, err = store.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, records)

	other, err := store.List(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}
