// ABOUTME: Store interface and data types for deskrouter persistence
// ABOUTME: Defines Conversation, Agent, Team, Assignment structs and the AssignmentStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
// or does not belong to the caller's organization.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded primary claim loses a race:
// the conversation already has a primary agent.
var ErrConflict = errors.New("conversation already claimed")

// ErrUnavailable is returned when the database is busy or a store call
// times out. Callers may retry with backoff.
var ErrUnavailable = errors.New("store unavailable")

// Priority levels for conversations, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// priorityRank orders priorities for queue sorting. Unknown values sort last.
func priorityRank(p string) int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Conversation status constants.
const (
	StatusOpen     = "open"
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
)

// Agent availability constants.
const (
	AvailabilityOnline  = "online"
	AvailabilityAway    = "away"
	AvailabilityBusy    = "busy"
	AvailabilityOffline = "offline"
)

// AssignedBySystem marks assignments created by auto-assignment rather
// than by a human agent.
const AssignedBySystem = "system"

// Conversation is the routed customer thread. The messaging subsystem owns
// it; this core reads it and tracks who is assigned to it.
type Conversation struct {
	ID          string
	OrgID       string
	ChannelID   string
	Priority    string // urgent, high, normal, low
	Status      string // open, pending, resolved, closed
	UnreadCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Agent is a human operator who can own or collaborate on conversations.
type Agent struct {
	ID           string
	OrgID        string
	Name         string
	Active       bool
	Availability string // online, away, busy, offline
	UpdatedAt    time.Time
}

// Team is a named group of agents responsible for a set of channels.
type Team struct {
	ID    string
	OrgID string
	Name  string
}

// Assignment relates an agent to a conversation. At most one row per
// conversation has IsPrimary set; the rest are collaborators.
type Assignment struct {
	ConversationID string
	AgentID        string
	IsPrimary      bool
	AssignedAt     time.Time
	AssignedBy     string // agent id or "system"
}

// AgentAssignment is an assignment joined with the agent it belongs to,
// for the read path.
type AgentAssignment struct {
	Agent      Agent
	IsPrimary  bool
	AssignedAt time.Time
}

// UpsertAssignmentParams drives the single-transaction assignment write.
//
// MakePrimary demotes any current primary in the same transaction. If the
// conversation has no primary at all the new row becomes primary regardless,
// so a first assignment never leaves the conversation ownerless.
// RequireUnclaimed makes the write a guarded claim: it fails with ErrConflict
// when another agent already holds primary.
type UpsertAssignmentParams struct {
	OrgID            string
	ConversationID   string
	AgentID          string
	MakePrimary      bool
	RequireUnclaimed bool
	AssignedBy       string
}

// QueueStats is the aggregate view of the unassigned queue.
type QueueStats struct {
	Waiting        int
	AvgWaitSeconds int
	OnlineAgents   int
	TotalAgents    int
	HandledToday   int
}

// AssignmentStore is the durable record of who owns what. All multi-step
// sequences (demote+promote, delete+promote-replacement, guarded claim) are
// single atomic operations here; callers never compose them from parts.
type AssignmentStore interface {
	// Assignments
	UpsertAssignment(ctx context.Context, p UpsertAssignmentParams) (*Assignment, error)
	// DeleteAssignment removes a row and, when the primary was removed,
	// promotes the longest-tenured remaining collaborator in the same
	// transaction. removed reports whether a row actually existed, so a
	// repeated call is a quiet no-op rather than an error.
	DeleteAssignment(ctx context.Context, orgID, conversationID, agentID string) (promoted *Assignment, removed bool, err error)
	PromoteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*Assignment, error)
	ListAssignments(ctx context.Context, orgID, conversationID string) ([]*AgentAssignment, error)

	// Conversations (written by inbound facts from the messaging subsystem)
	UpsertConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, orgID, id string) (*Conversation, error)

	// Queue read model
	ListUnassigned(ctx context.Context, orgID, channelID string, limit int) ([]*Conversation, error)
	QueueStats(ctx context.Context, orgID string, now time.Time) (*QueueStats, error)

	// Workload snapshot for the selector
	OpenConversationCounts(ctx context.Context, orgID string) (map[string]int, error)

	// Close releases any resources held by the store
	Close() error
}

// DirectoryStore is the read-mostly view of agents and teams. The write
// methods exist so availability facts and team setup flow through the same
// database; a deployment backed by an external identity service would
// implement only the reads.
type DirectoryStore interface {
	UpsertAgent(ctx context.Context, agent *Agent) error
	SetAgentAvailability(ctx context.Context, orgID, agentID, availability string) error
	GetAgent(ctx context.Context, orgID, id string) (*Agent, error)
	ListAgents(ctx context.Context, orgID string) ([]*Agent, error)

	CreateTeam(ctx context.Context, team *Team) error
	AddTeamMember(ctx context.Context, orgID, teamID, agentID string) error
	AssignTeamChannel(ctx context.Context, orgID, teamID, channelID string) error
	TeamsForChannel(ctx context.Context, orgID, channelID string) ([]string, error)
	TeamMembers(ctx context.Context, orgID, teamID string) ([]string, error)
}
