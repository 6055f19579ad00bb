// ABOUTME: Tests for the in-memory mock store
// ABOUTME: Verifies it mirrors the SQLite store's composite-operation semantics

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMock(t *testing.T, m *MockStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, m.UpsertConversation(ctx, &Conversation{
		ID: "conv1", OrgID: "org1", ChannelID: "chan1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, m.UpsertAgent(ctx, &Agent{
			ID: id, OrgID: "org1", Name: id, Active: true, Availability: AvailabilityOnline,
		}))
	}
}

func TestMockStore_GuardedClaim(t *testing.T) {
	m := NewMockStore()
	seedMock(t, m)
	ctx := context.Background()

	_, err := m.UpsertAssignment(ctx, UpsertAssignmentParams{
		OrgID: "org1", ConversationID: "conv1", AgentID: "alice",
		MakePrimary: true, RequireUnclaimed: true,
	})
	require.NoError(t, err)

	_, err = m.UpsertAssignment(ctx, UpsertAssignmentParams{
		OrgID: "org1", ConversationID: "conv1", AgentID: "bob",
		MakePrimary: true, RequireUnclaimed: true,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMockStore_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	m := NewMockStore()
	seedMock(t, m)
	ctx := context.Background()

	agents := []string{"alice", "bob", "carol"}
	results := make([]error, len(agents))

	var wg sync.WaitGroup
	for i, agentID := range agents {
		i, agentID := i, agentID
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = m.UpsertAssignment(ctx, UpsertAssignmentParams{
				OrgID: "org1", ConversationID: "conv1", AgentID: agentID,
				MakePrimary: true, RequireUnclaimed: true,
			})
		}()
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, len(agents)-1, conflicts)
}

func TestMockStore_DeletePromotesByTenure(t *testing.T) {
	m := NewMockStore()
	seedMock(t, m)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := m.UpsertAssignment(ctx, UpsertAssignmentParams{
			OrgID: "org1", ConversationID: "conv1", AgentID: id,
		})
		require.NoError(t, err)
	}

	// Alice holds primary; make carol the longest-tenured collaborator
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.SetAssignedAt("conv1", "alice", base)
	m.SetAssignedAt("conv1", "bob", base.Add(2*time.Hour))
	m.SetAssignedAt("conv1", "carol", base.Add(1*time.Hour))

	promoted, removed, err := m.DeleteAssignment(ctx, "org1", "conv1", "alice")
	require.NoError(t, err)
	assert.True(t, removed)
	require.NotNil(t, promoted)
	assert.Equal(t, "carol", promoted.AgentID)
	assert.True(t, promoted.IsPrimary)
}

func TestMockStore_DeleteMissingRowIsNoOp(t *testing.T) {
	m := NewMockStore()
	seedMock(t, m)

	promoted, removed, err := m.DeleteAssignment(context.Background(), "org1", "conv1", "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Nil(t, promoted)
}

func TestMockStore_FailUpserts(t *testing.T) {
	m := NewMockStore()
	seedMock(t, m)
	ctx := context.Background()

	m.FailUpserts = 2

	_, err := m.UpsertAssignment(ctx, UpsertAssignmentParams{
		OrgID: "org1", ConversationID: "conv1", AgentID: "alice",
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = m.UpsertAssignment(ctx, UpsertAssignmentParams{
		OrgID: "org1", ConversationID: "conv1", AgentID: "alice",
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	a, err := m.UpsertAssignment(ctx, UpsertAssignmentParams{
		OrgID: "org1", ConversationID: "conv1", AgentID: "alice",
	})
	require.NoError(t, err)
	assert.True(t, a.IsPrimary)
}
