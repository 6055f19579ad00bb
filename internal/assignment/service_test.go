// ABOUTME: Tests for the assignment engine
// ABOUTME: Covers claim races, idempotent unassign, retries and event publication

package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskrouter/internal/directory"
	"github.com/deskhive/deskrouter/internal/notify"
	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

type recordedEvent struct {
	orgID   string
	topic   string
	payload any
}

func (r *recordingNotifier) Publish(ctx context.Context, orgID, topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{orgID: orgID, topic: topic, payload: payload})
	return r.err
}

func (r *recordingNotifier) recorded() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *recordingNotifier) assignmentActions() []string {
	var actions []string
	for _, e := range r.recorded() {
		if e.topic != notify.TopicAssignment {
			continue
		}
		if p, ok := e.payload.(notify.AssignmentPayload); ok {
			actions = append(actions, p.Action)
		}
	}
	return actions
}

func setupEngine(t *testing.T) (*Service, *store.MockStore, *recordingNotifier) {
	t.Helper()

	m := store.NewMockStore()
	notifier := &recordingNotifier{}
	engine := New(m, directory.New(m, nil), notifier, nil)

	ctx := context.Background()
	require.NoError(t, m.UpsertConversation(ctx, &store.Conversation{
		ID: "conv1", OrgID: "org1", ChannelID: "chan1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, m.UpsertAgent(ctx, &store.Agent{
			ID: id, OrgID: "org1", Name: id, Active: true, Availability: store.AvailabilityOnline,
		}))
	}
	return engine, m, notifier
}

func TestAssign_PublishesAfterWrite(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	ctx := context.Background()

	a, err := engine.Assign(ctx, "org1", "conv1", "alice", true, "manager")
	require.NoError(t, err)
	assert.True(t, a.IsPrimary)
	assert.Equal(t, "manager", a.AssignedBy)

	events := notifier.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, notify.TopicAssignment, events[0].topic)
	assert.Equal(t, notify.TopicQueue, events[1].topic)
	assert.Equal(t, "org1", events[0].orgID)

	payload := events[0].payload.(notify.AssignmentPayload)
	assert.Equal(t, notify.ActionAssigned, payload.Action)
	assert.Equal(t, "alice", payload.AgentID)
	assert.True(t, payload.IsPrimary)
}

func TestAssign_FailedWritePublishesNothing(t *testing.T) {
	engine, m, notifier := setupEngine(t)

	_, err := engine.Assign(context.Background(), "org1", "ghost", "alice", true, "manager")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, notifier.recorded())

	m.FailUpserts = maxAttempts
	_, err = engine.Assign(context.Background(), "org1", "conv1", "alice", true, "manager")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, notifier.recorded())
}

func TestTake_RaceHasExactlyOneWinner(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	agents := []string{"alice", "bob", "carol"}
	results := make([]error, len(agents))

	var wg sync.WaitGroup
	for i, agentID := range agents {
		i, agentID := i, agentID
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = engine.Take(ctx, "org1", "conv1", agentID)
		}()
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, len(agents)-1, conflicts)

	list, err := engine.AgentsFor(ctx, "org1", "conv1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPrimary)
}

func TestTake_RepeatByOwnerSucceeds(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	first, err := engine.Take(ctx, "org1", "conv1", "alice")
	require.NoError(t, err)

	second, err := engine.Take(ctx, "org1", "conv1", "alice")
	require.NoError(t, err)
	assert.True(t, second.IsPrimary)
	assert.Equal(t, first.AssignedAt, second.AssignedAt)
}

func TestUnassign_PromotesAndPublishes(t *testing.T) {
	engine, m, notifier := setupEngine(t)
	ctx := context.Background()

	_, err := engine.Assign(ctx, "org1", "conv1", "alice", true, "alice")
	require.NoError(t, err)
	_, err = engine.Assign(ctx, "org1", "conv1", "bob", false, "alice")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.SetAssignedAt("conv1", "alice", base)
	m.SetAssignedAt("conv1", "bob", base.Add(time.Hour))

	notifier.events = nil
	require.NoError(t, engine.Unassign(ctx, "org1", "conv1", "alice"))

	assert.Equal(t, []string{notify.ActionUnassigned, notify.ActionPrimaryChanged}, notifier.assignmentActions())

	list, err := engine.AgentsFor(ctx, "org1", "conv1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].Agent.ID)
	assert.True(t, list[0].IsPrimary)
}

func TestUnassign_RepeatIsQuiet(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	ctx := context.Background()

	_, err := engine.Assign(ctx, "org1", "conv1", "alice", true, "alice")
	require.NoError(t, err)

	require.NoError(t, engine.Unassign(ctx, "org1", "conv1", "alice"))

	// Second removal: success, but no events this time
	notifier.events = nil
	require.NoError(t, engine.Unassign(ctx, "org1", "conv1", "alice"))
	assert.Empty(t, notifier.recorded())
}

func TestSetPrimary_RequiresCollaboration(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	ctx := context.Background()

	_, err := engine.SetPrimary(ctx, "org1", "conv1", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, notifier.recorded())
}

func TestSetPrimary_PromotesCollaborator(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	ctx := context.Background()

	_, err := engine.Assign(ctx, "org1", "conv1", "alice", true, "alice")
	require.NoError(t, err)
	_, err = engine.Assign(ctx, "org1", "conv1", "bob", false, "alice")
	require.NoError(t, err)

	notifier.events = nil
	a, err := engine.SetPrimary(ctx, "org1", "conv1", "bob")
	require.NoError(t, err)
	assert.True(t, a.IsPrimary)
	assert.Equal(t, []string{notify.ActionPrimaryChanged}, notifier.assignmentActions())
}

func TestAutoAssign_ManualIsNoOp(t *testing.T) {
	engine, _, notifier := setupEngine(t)

	a, err := engine.AutoAssign(context.Background(), "org1", "conv1", "chan1", selector.ModeManual)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, notifier.recorded())
}

func TestAutoAssign_PicksLeastLoaded(t *testing.T) {
	engine, m, _ := setupEngine(t)
	ctx := context.Background()

	// Load up alice so bob is the obvious pick
	require.NoError(t, m.UpsertConversation(ctx, &store.Conversation{
		ID: "conv2", OrgID: "org1", ChannelID: "chan1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	_, err := engine.Assign(ctx, "org1", "conv2", "alice", true, "alice")
	require.NoError(t, err)

	// carol is away, not eligible
	require.NoError(t, m.SetAgentAvailability(ctx, "org1", "carol", store.AvailabilityAway))

	a, err := engine.AutoAssign(ctx, "org1", "conv1", "chan1", selector.ModeLoadBalanced)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "bob", a.AgentID)
	assert.True(t, a.IsPrimary)
	assert.Equal(t, store.AssignedBySystem, a.AssignedBy)
}

func TestAutoAssign_NoEligibleAgent(t *testing.T) {
	engine, m, notifier := setupEngine(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, m.SetAgentAvailability(ctx, "org1", id, store.AvailabilityOffline))
	}

	a, err := engine.AutoAssign(ctx, "org1", "conv1", "chan1", selector.ModeLoadBalanced)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, notifier.recorded())
}

func TestAutoAssign_LostRaceIsNotAnError(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	ctx := context.Background()

	// bob took the conversation before the selector's claim lands
	_, err := engine.Take(ctx, "org1", "conv1", "bob")
	require.NoError(t, err)

	notifier.events = nil
	a, err := engine.AutoAssign(ctx, "org1", "conv1", "chan1", selector.ModeLoadBalanced)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, notifier.recorded())
}

func TestAutoAssign_UnknownConversation(t *testing.T) {
	engine, _, _ := setupEngine(t)

	_, err := engine.AutoAssign(context.Background(), "org1", "ghost", "chan1", selector.ModeLoadBalanced)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetry_RecoversFromTransientBusy(t *testing.T) {
	engine, m, _ := setupEngine(t)

	m.FailUpserts = maxAttempts - 1
	a, err := engine.Assign(context.Background(), "org1", "conv1", "alice", true, "alice")
	require.NoError(t, err)
	assert.True(t, a.IsPrimary)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	engine, m, _ := setupEngine(t)

	m.FailUpserts = maxAttempts
	_, err := engine.Assign(context.Background(), "org1", "conv1", "alice", true, "alice")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestPublishFailureNeverFailsWrite(t *testing.T) {
	engine, _, notifier := setupEngine(t)
	notifier.err = errors.New("sink down")

	a, err := engine.Assign(context.Background(), "org1", "conv1", "alice", true, "alice")
	require.NoError(t, err)
	assert.True(t, a.IsPrimary)
}

func TestRecordConversation(t *testing.T) {
	engine, m, notifier := setupEngine(t)
	ctx := context.Background()

	err := engine.RecordConversation(ctx, &store.Conversation{
		ID: "conv-new", OrgID: "org1", ChannelID: "chan1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	conv, err := m.GetConversation(ctx, "org1", "conv-new")
	require.NoError(t, err)
	assert.Equal(t, store.StatusOpen, conv.Status)
	assert.Equal(t, store.PriorityNormal, conv.Priority)

	events := notifier.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, notify.TopicQueue, events[0].topic)

	err = engine.RecordConversation(ctx, &store.Conversation{OrgID: "org1"})
	assert.Error(t, err)
}
