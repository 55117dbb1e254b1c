package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
)

func newMessage(sessionID, from, to, msgType string, created time.Time) *core.Message {
	return &core.Message{
		ID:        util.NewID(),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Type:      msgType,
		Data:      map[string]any{"task": "summarize"},
		Status:    core.MessageStatusSent,
		Created:   created,
	}
}

func TestInMemoryStore_SaveAndList(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	first := newMessage("s1", "planner", "writer", "delegate", base)
	second := newMessage("s1", "writer", "", "announce", base.Add(time.Millisecond))

	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, first))

	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first.ID, got[0].ID, "list must be in creation order")
	require.True(t, got[1].Broadcast())
}

func TestInMemoryStore_MarkDelivered(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	m := newMessage("s1", "planner", "writer", "delegate", time.Now().UTC())
	require.NoError(t, store.Save(ctx, m))

	at := time.Now().UTC()
	require.NoError(t, store.MarkDelivered(ctx, m.ID, at))

	got, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, core.MessageStatusDelivered, got[0].Status)
	require.NotNil(t, got[0].Processed)
	require.True(t, got[0].Processed.Equal(at))
}

func TestInMemoryStore_MarkDeliveredUnknown(t *testing.T) {
	store := NewInMemoryStore()

	err := store.MarkDelivered(context.Background(), "missing", time.Now())
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestInMemoryStore_ClearScopedToSession(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newMessage("s1", "a", "b", "delegate", time.Now())))
	require.NoError(t, store.Save(ctx, newMessage("s2", "a", "b", "delegate", time.Now())))

	require.NoError(t, store.Clear(ctx, "s1"))

	gone, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, gone)

	kept, err := store.List(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, kept, 1)
}
