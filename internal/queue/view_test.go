// ABOUTME: Tests for the queue read model
// ABOUTME: Verifies queue ordering passthrough and the wait-time proxy

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskrouter/internal/store"
)

func setupView(t *testing.T) (*View, *store.MockStore) {
	t.Helper()
	m := store.NewMockStore()
	return New(m, nil), m
}

func seedWaiting(t *testing.T, m *store.MockStore, id, priority string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, m.UpsertConversation(context.Background(), &store.Conversation{
		ID: id, OrgID: "org1", ChannelID: "chan1", Priority: priority,
		Status: store.StatusOpen, CreatedAt: createdAt, UpdatedAt: createdAt,
	}))
}

func TestListUnassigned_QueueOrder(t *testing.T) {
	v, m := setupView(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedWaiting(t, m, "c-normal", store.PriorityNormal, base)
	seedWaiting(t, m, "c-urgent", store.PriorityUrgent, base.Add(time.Hour))
	seedWaiting(t, m, "c-high", store.PriorityHigh, base)

	waiting, err := v.ListUnassigned(context.Background(), "org1", "", 0)
	require.NoError(t, err)
	require.Len(t, waiting, 3)
	assert.Equal(t, "c-urgent", waiting[0].ID)
	assert.Equal(t, "c-high", waiting[1].ID)
	assert.Equal(t, "c-normal", waiting[2].ID)
}

func TestStats_WaitProxy(t *testing.T) {
	v, m := setupView(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	// Oldest is 300s old with 3 waiting -> 100s
	seedWaiting(t, m, "c1", store.PriorityNormal, now.Add(-300*time.Second))
	seedWaiting(t, m, "c2", store.PriorityNormal, now.Add(-60*time.Second))
	seedWaiting(t, m, "c3", store.PriorityNormal, now.Add(-30*time.Second))

	stats, err := v.Stats(context.Background(), "org1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Waiting)
	assert.Equal(t, 100, stats.AvgWaitSeconds)
}

func TestStats_Empty(t *testing.T) {
	v, _ := setupView(t)

	stats, err := v.Stats(context.Background(), "org1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 0, stats.AvgWaitSeconds)
}
