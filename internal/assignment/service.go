// ABOUTME: Assignment engine orchestrating claim/release/promote operations
// ABOUTME: Store writes are atomic per conversation; events publish only after commit

package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/deskhive/deskrouter/internal/notify"
	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

const (
	// maxAttempts bounds the retry loop around busy-store outcomes before
	// the error surfaces to the caller.
	maxAttempts = 3

	// publishTimeout bounds the notifier call so a slow sink can never
	// hold the request open.
	publishTimeout = 5 * time.Second
)

// Store defines what the engine needs from the assignment store.
type Store interface {
	UpsertAssignment(ctx context.Context, p store.UpsertAssignmentParams) (*store.Assignment, error)
	DeleteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*store.Assignment, bool, error)
	PromoteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*store.Assignment, error)
	ListAssignments(ctx context.Context, orgID, conversationID string) ([]*store.AgentAssignment, error)
	GetConversation(ctx context.Context, orgID, id string) (*store.Conversation, error)
	UpsertConversation(ctx context.Context, conv *store.Conversation) error
}

// SnapshotSource supplies the selector's input. Satisfied by the directory
// service.
type SnapshotSource interface {
	Snapshot(ctx context.Context, orgID, channelID string) (selector.Snapshot, error)
}

// Service is the assignment engine. It holds no state of its own; every
// instance sharing a store sees the same world.
type Service struct {
	store     Store
	directory SnapshotSource
	notifier  notify.Notifier
	logger    *slog.Logger
}

// New creates an assignment engine. Pass nil logger for default.
func New(st Store, dir SnapshotSource, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		directory: dir,
		notifier:  notifier,
		logger:    logger.With("component", "assignment"),
	}
}

// Assign creates or updates the (conversation, agent) row. With isPrimary
// set, the current primary is demoted in the same store transaction. The
// first assignment on a conversation becomes primary regardless, so the
// conversation is never collaborated-but-ownerless.
func (s *Service) Assign(ctx context.Context, orgID, conversationID, agentID string, isPrimary bool, assignedBy string) (*store.Assignment, error) {
	assignment, err := s.upsertWithRetry(ctx, store.UpsertAssignmentParams{
		OrgID:          orgID,
		ConversationID: conversationID,
		AgentID:        agentID,
		MakePrimary:    isPrimary,
		AssignedBy:     assignedBy,
	})
	if err != nil {
		return nil, err
	}

	s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
		AgentID:        agentID,
		IsPrimary:      assignment.IsPrimary,
		AssignedBy:     assignment.AssignedBy,
		AssignedAt:     assignment.AssignedAt,
	})
	s.publish(orgID, notify.TopicQueue, notify.QueuePayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
	})
	return assignment, nil
}

// Take is self-service claiming from the queue: the acting agent becomes
// primary, but only if nobody else holds primary. The loser of a race gets
// ErrConflict and should re-fetch AgentsFor to show the actual owner.
func (s *Service) Take(ctx context.Context, orgID, conversationID, agentID string) (*store.Assignment, error) {
	assignment, err := s.upsertWithRetry(ctx, store.UpsertAssignmentParams{
		OrgID:            orgID,
		ConversationID:   conversationID,
		AgentID:          agentID,
		MakePrimary:      true,
		RequireUnclaimed: true,
		AssignedBy:       agentID,
	})
	if err != nil {
		return nil, err
	}

	s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
		AgentID:        agentID,
		IsPrimary:      true,
		AssignedBy:     agentID,
		AssignedAt:     assignment.AssignedAt,
	})
	s.publish(orgID, notify.TopicQueue, notify.QueuePayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
	})
	return assignment, nil
}

// Unassign deletes the row. Removing the primary promotes the
// longest-tenured remaining collaborator inside the same store transaction.
// A row that no longer exists is success, not an error: the end state
// matches caller intent.
func (s *Service) Unassign(ctx context.Context, orgID, conversationID, agentID string) error {
	var promoted *store.Assignment
	var removed bool
	err := s.withRetry(ctx, func() error {
		var err error
		promoted, removed, err = s.store.DeleteAssignment(ctx, orgID, conversationID, agentID)
		return err
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
		Action:         notify.ActionUnassigned,
		ConversationID: conversationID,
		AgentID:        agentID,
	})
	if promoted != nil {
		s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
			Action:         notify.ActionPrimaryChanged,
			ConversationID: conversationID,
			AgentID:        promoted.AgentID,
			IsPrimary:      true,
			AssignedAt:     promoted.AssignedAt,
		})
	}
	s.publish(orgID, notify.TopicQueue, notify.QueuePayload{
		Action:         notify.ActionUnassigned,
		ConversationID: conversationID,
	})
	return nil
}

// SetPrimary promotes an existing collaborator. Fails with ErrNotFound when
// the agent has no assignment row: promotion requires prior collaboration.
func (s *Service) SetPrimary(ctx context.Context, orgID, conversationID, agentID string) (*store.Assignment, error) {
	var assignment *store.Assignment
	err := s.withRetry(ctx, func() error {
		var err error
		assignment, err = s.store.PromoteAssignment(ctx, orgID, conversationID, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
		Action:         notify.ActionPrimaryChanged,
		ConversationID: conversationID,
		AgentID:        agentID,
		IsPrimary:      true,
		AssignedAt:     assignment.AssignedAt,
	})
	return assignment, nil
}

// AutoAssign resolves a candidate via the selector and claims the
// conversation for them. Returns (nil, nil) when the mode produces no
// candidate — an expected outcome, not a failure. Losing a claim race to a
// concurrent Take also returns (nil, nil): the conversation no longer needs
// an owner.
func (s *Service) AutoAssign(ctx context.Context, orgID, conversationID, channelID string, mode selector.Mode) (*store.Assignment, error) {
	if mode == selector.ModeManual {
		return nil, nil
	}

	// Conversation must exist in the org before any selector work
	if _, err := s.store.GetConversation(ctx, orgID, conversationID); err != nil {
		return nil, err
	}

	snap, err := s.directory.Snapshot(ctx, orgID, channelID)
	if err != nil {
		return nil, fmt.Errorf("building selector snapshot: %w", err)
	}

	agentID, ok := selector.Select(mode, snap)
	if !ok {
		s.logger.Debug("no eligible agent",
			"org_id", orgID,
			"conversation_id", conversationID,
			"mode", mode)
		return nil, nil
	}

	assignment, err := s.upsertWithRetry(ctx, store.UpsertAssignmentParams{
		OrgID:            orgID,
		ConversationID:   conversationID,
		AgentID:          agentID,
		MakePrimary:      true,
		RequireUnclaimed: true,
		AssignedBy:       store.AssignedBySystem,
	})
	if errors.Is(err, store.ErrConflict) {
		s.logger.Debug("conversation claimed during auto-assign",
			"conversation_id", conversationID,
			"candidate", agentID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("auto-assigned conversation",
		"org_id", orgID,
		"conversation_id", conversationID,
		"agent_id", agentID,
		"mode", mode)

	s.publish(orgID, notify.TopicAssignment, notify.AssignmentPayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
		AgentID:        agentID,
		IsPrimary:      true,
		AssignedBy:     store.AssignedBySystem,
		AssignedAt:     assignment.AssignedAt,
	})
	s.publish(orgID, notify.TopicQueue, notify.QueuePayload{
		Action:         notify.ActionAssigned,
		ConversationID: conversationID,
	})
	return assignment, nil
}

// AgentsFor returns a conversation's agents, primary first, then by
// assignment tenure.
func (s *Service) AgentsFor(ctx context.Context, orgID, conversationID string) ([]*store.AgentAssignment, error) {
	return s.store.ListAssignments(ctx, orgID, conversationID)
}

// RecordConversation applies a "conversation created/updated" fact from the
// messaging subsystem. A new conversation enters the queue implicitly by
// having zero assignment rows.
func (s *Service) RecordConversation(ctx context.Context, conv *store.Conversation) error {
	if conv.ID == "" || conv.OrgID == "" {
		return fmt.Errorf("conversation id and org id are required")
	}
	if err := s.store.UpsertConversation(ctx, conv); err != nil {
		return err
	}

	s.publish(conv.OrgID, notify.TopicQueue, notify.QueuePayload{
		Action:         "updated",
		ConversationID: conv.ID,
	})
	return nil
}

// upsertWithRetry runs the assignment write with bounded retries.
func (s *Service) upsertWithRetry(ctx context.Context, p store.UpsertAssignmentParams) (*store.Assignment, error) {
	var assignment *store.Assignment
	err := s.withRetry(ctx, func() error {
		var err error
		assignment, err = s.store.UpsertAssignment(ctx, p)
		return err
	})
	return assignment, err
}

// withRetry retries fn on ErrUnavailable with jittered backoff, up to
// maxAttempts. ErrConflict and ErrNotFound surface immediately.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * 50 * time.Millisecond
		backoff += time.Duration(rand.Int63n(int64(25 * time.Millisecond)))
		s.logger.Debug("store busy, retrying", "attempt", attempt, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// publish delivers an event with a detached timeout context so publication
// can neither block nor fail the write that triggered it. The write stands;
// a publish failure is logged and swallowed.
func (s *Service) publish(orgID, topic string, payload any) {
	if s.notifier == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.notifier.Publish(pubCtx, orgID, topic, payload); err != nil {
		s.logger.Error("failed to publish event",
			"error", err,
			"org_id", orgID,
			"topic", topic)
	}
}
