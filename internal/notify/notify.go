// ABOUTME: Notifier interface, topics and payloads for assignment/queue deltas
// ABOUTME: Published only after the store transaction commits, never before

package notify

import (
	"context"
	"errors"
	"time"
)

// Topics carried by the notifier.
const (
	// TopicAssignment carries who-owns-what deltas for a conversation.
	TopicAssignment = "conversation:assignment"
	// TopicQueue signals that the unassigned queue changed.
	TopicQueue = "queue:updated"
)

// Assignment actions.
const (
	ActionAssigned       = "assigned"
	ActionUnassigned     = "unassigned"
	ActionPrimaryChanged = "primary_changed"
)

// AssignmentPayload describes an assignment delta.
type AssignmentPayload struct {
	Action         string    `json:"action"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	IsPrimary      bool      `json:"is_primary"`
	AssignedBy     string    `json:"assigned_by,omitempty"`
	AssignedAt     time.Time `json:"assigned_at,omitzero"`
}

// QueuePayload describes a queue membership change.
type QueuePayload struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// Event is the envelope delivered to subscribers and external sinks.
type Event struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Notifier publishes a state delta to everyone watching an organization.
// Implementations must not block the caller's write path: a slow or failing
// sink is the sink's problem, not the engine's.
type Notifier interface {
	Publish(ctx context.Context, orgID, topic string, payload any) error
}

// Fanout composes several notifiers. Every sink gets the event even when an
// earlier one fails; errors are joined for the caller to log.
type Fanout []Notifier

// Publish delivers the event to all sinks.
func (f Fanout) Publish(ctx context.Context, orgID, topic string, payload any) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, orgID, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
