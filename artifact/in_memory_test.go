package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

var _ core.ArtifactStore = (*InMemoryStore)(nil)

func newArtifact(id, sessionID, workerID, typ string) *core.Artifact {
	now := time.Now().UTC()
	return &core.Artifact{
		ID:        id,
		SessionID: sessionID,
		WorkerID:  workerID,
		Type:      typ,
		Content:   map[string]any{"text": "draft body"},
		Status:    core.ArtifactStatusDraft,
		Created:   now,
		Updated:   now,
	}
}

func TestInMemoryStore_DraftToFinalRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	art := newArtifact("a1", "s1", "w1", "outline")
	require.NoError(t, store.Save(ctx, art))

	art.Status = core.ArtifactStatusFinal
	art.Content = map[string]any{"text": "final body"}
	require.NoError(t, store.Save(ctx, art))

	got, err := store.Get(ctx, "s1", "a1")
	require.NoError(t, err)
	require.Equal(t, core.ArtifactStatusFinal, got.Status)
	require.Equal(t, "final body", got.Content["text"])
	require.False(t, got.Updated.Before(got.Created))
}

func TestInMemoryStore_GetUnknown(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get(context.Background(), "s1", "missing")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "artifact", notFound.Kind)
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newArtifact("a1", "s1", "w1", "outline")))
	require.NoError(t, store.Save(ctx, newArtifact("a2", "s1", "w1", "summary")))
	final := newArtifact("a3", "s1", "w2", "summary")
	final.Status = core.ArtifactStatusFinal
	require.NoError(t, store.Save(ctx, final))

	byType, err := store.List(ctx, "s1", core.ArtifactFilter{Type: "summary"})
	require.NoError(t, err)
	require.Len(t, byType, 2)

	byStatus, err := store.List(ctx, "s1", core.ArtifactFilter{Status: core.ArtifactStatusFinal})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	require.Equal(t, "a3", byStatus[0].ID)

	paged, err := store.List(ctx, "s1", core.ArtifactFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
}

func TestInMemoryStore_ClearKeepsType(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newArtifact("a1", "s1", "w1", "outline")))
	require.NoError(t, store.Save(ctx, newArtifact("a2", "s1", "w2", "summary")))

	require.NoError(t, store.Clear(ctx, "s1", "summary"))

	remaining, err := store.List(ctx, "s1", core.ArtifactFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "summary", remaining[0].Type)

	require.NoError(t, store.Clear(ctx, "s1", ""))
	remaining, err = store.List(ctx, "s1", core.ArtifactFilter{})
	require.NoError(t, err)
	require.Empty(t, remaining)
}
