// ABOUTME: Mock store implementation for testing
// ABOUTME: Allows engine, selector and queue tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory AssignmentStore and DirectoryStore for testing.
// A single mutex serializes every operation, which also gives the composite
// assignment operations the same atomicity the SQLite transactions provide.
type MockStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation          // keyed by conversation ID
	agents        map[string]*Agent                 // keyed by agent ID
	teams         map[string]*Team                  // keyed by team ID
	teamMembers   map[string]map[string]bool        // teamID -> agentID set
	teamChannels  map[string]map[string]bool        // teamID -> channelID set
	assignments   map[string]map[string]*Assignment // conversationID -> agentID -> row

	// FailUpserts makes the next N UpsertAssignment calls return
	// ErrUnavailable, for exercising the engine's bounded retry.
	FailUpserts int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		agents:        make(map[string]*Agent),
		teams:         make(map[string]*Team),
		teamMembers:   make(map[string]map[string]bool),
		teamChannels:  make(map[string]map[string]bool),
		assignments:   make(map[string]map[string]*Assignment),
	}
}

func (m *MockStore) conversationInOrg(orgID, conversationID string) (*Conversation, bool) {
	conv, ok := m.conversations[conversationID]
	if !ok || conv.OrgID != orgID {
		return nil, false
	}
	return conv, true
}

func (m *MockStore) currentPrimary(conversationID string) *Assignment {
	for _, a := range m.assignments[conversationID] {
		if a.IsPrimary {
			return a
		}
	}
	return nil
}

// UpsertAssignment mirrors the SQLite transaction: guard, demote, upsert.
func (m *MockStore) UpsertAssignment(ctx context.Context, p UpsertAssignmentParams) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpserts > 0 {
		m.FailUpserts--
		return nil, fmt.Errorf("mock store busy: %w", ErrUnavailable)
	}

	if _, ok := m.conversationInOrg(p.OrgID, p.ConversationID); !ok {
		return nil, ErrNotFound
	}
	agent, ok := m.agents[p.AgentID]
	if !ok || agent.OrgID != p.OrgID {
		return nil, ErrNotFound
	}

	primary := m.currentPrimary(p.ConversationID)
	if p.RequireUnclaimed && primary != nil && primary.AgentID != p.AgentID {
		return nil, ErrConflict
	}

	makePrimary := p.MakePrimary || primary == nil
	if makePrimary && primary != nil && primary.AgentID != p.AgentID {
		primary.IsPrimary = false
	}

	rows, ok := m.assignments[p.ConversationID]
	if !ok {
		rows = make(map[string]*Assignment)
		m.assignments[p.ConversationID] = rows
	}

	assignedBy := p.AssignedBy
	if assignedBy == "" {
		assignedBy = AssignedBySystem
	}

	row, exists := rows[p.AgentID]
	if !exists {
		row = &Assignment{
			ConversationID: p.ConversationID,
			AgentID:        p.AgentID,
			AssignedAt:     time.Now().UTC(),
			AssignedBy:     assignedBy,
		}
		rows[p.AgentID] = row
	}
	row.IsPrimary = makePrimary

	result := *row
	return &result, nil
}

// DeleteAssignment removes a row, promoting the earliest-assigned remaining
// collaborator when the primary goes. Missing rows are a quiet no-op.
func (m *MockStore) DeleteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversationInOrg(orgID, conversationID); !ok {
		return nil, false, ErrNotFound
	}

	rows := m.assignments[conversationID]
	row, ok := rows[agentID]
	if !ok {
		return nil, false, nil
	}
	delete(rows, agentID)

	var promoted *Assignment
	if row.IsPrimary {
		remaining := make([]*Assignment, 0, len(rows))
		for _, a := range rows {
			remaining = append(remaining, a)
		}
		sort.Slice(remaining, func(i, j int) bool {
			if !remaining[i].AssignedAt.Equal(remaining[j].AssignedAt) {
				return remaining[i].AssignedAt.Before(remaining[j].AssignedAt)
			}
			return remaining[i].AgentID < remaining[j].AgentID
		})
		if len(remaining) > 0 {
			remaining[0].IsPrimary = true
			p := *remaining[0]
			promoted = &p
		}
	}

	return promoted, true, nil
}

// PromoteAssignment makes an existing collaborator primary.
func (m *MockStore) PromoteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversationInOrg(orgID, conversationID); !ok {
		return nil, ErrNotFound
	}

	row, ok := m.assignments[conversationID][agentID]
	if !ok {
		return nil, ErrNotFound
	}

	if !row.IsPrimary {
		if primary := m.currentPrimary(conversationID); primary != nil {
			primary.IsPrimary = false
		}
		row.IsPrimary = true
	}

	result := *row
	return &result, nil
}

// ListAssignments returns agents on a conversation, primary first, then by
// assignment tenure.
func (m *MockStore) ListAssignments(ctx context.Context, orgID, conversationID string) ([]*AgentAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversationInOrg(orgID, conversationID); !ok {
		return nil, ErrNotFound
	}

	var result []*AgentAssignment
	for agentID, row := range m.assignments[conversationID] {
		agent, ok := m.agents[agentID]
		if !ok {
			continue
		}
		result = append(result, &AgentAssignment{
			Agent:      *agent,
			IsPrimary:  row.IsPrimary,
			AssignedAt: row.AssignedAt,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IsPrimary != result[j].IsPrimary {
			return result[i].IsPrimary
		}
		if !result[i].AssignedAt.Equal(result[j].AssignedAt) {
			return result[i].AssignedAt.Before(result[j].AssignedAt)
		}
		return result[i].Agent.ID < result[j].Agent.ID
	})
	return result, nil
}

// UpsertConversation stores a conversation.
func (m *MockStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	if c.Priority == "" {
		c.Priority = PriorityNormal
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation scoped to an org.
func (m *MockStore) GetConversation(ctx context.Context, orgID, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversationInOrg(orgID, id)
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

// ListUnassigned returns waiting conversations in queue order.
func (m *MockStore) ListUnassigned(ctx context.Context, orgID, channelID string, limit int) ([]*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var waiting []*Conversation
	for _, conv := range m.conversations {
		if conv.OrgID != orgID {
			continue
		}
		if conv.Status != StatusOpen && conv.Status != StatusPending {
			continue
		}
		if channelID != "" && conv.ChannelID != channelID {
			continue
		}
		if len(m.assignments[conv.ID]) > 0 {
			continue
		}
		c := *conv
		waiting = append(waiting, &c)
	}

	sort.Slice(waiting, func(i, j int) bool {
		ri, rj := priorityRank(waiting[i].Priority), priorityRank(waiting[j].Priority)
		if ri != rj {
			return ri > rj
		}
		if !waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
		}
		return waiting[i].ID < waiting[j].ID
	})

	if len(waiting) > limit {
		waiting = waiting[:limit]
	}
	return waiting, nil
}

// QueueStats computes the aggregate queue view from the in-memory state.
func (m *MockStore) QueueStats(ctx context.Context, orgID string, now time.Time) (*QueueStats, error) {
	waiting, err := m.ListUnassigned(ctx, orgID, "", 200)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &QueueStats{Waiting: len(waiting)}

	if len(waiting) > 0 {
		oldest := waiting[0].CreatedAt
		for _, c := range waiting[1:] {
			if c.CreatedAt.Before(oldest) {
				oldest = c.CreatedAt
			}
		}
		age := int(now.Sub(oldest).Seconds())
		if age < 0 {
			age = 0
		}
		stats.AvgWaitSeconds = age / len(waiting)
	}

	for _, a := range m.agents {
		if a.OrgID != orgID || !a.Active {
			continue
		}
		stats.TotalAgents++
		if a.Availability == AvailabilityOnline {
			stats.OnlineAgents++
		}
	}

	midnight := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for convID, rows := range m.assignments {
		conv, ok := m.conversations[convID]
		if !ok || conv.OrgID != orgID || len(rows) == 0 {
			continue
		}
		var first time.Time
		for _, a := range rows {
			if first.IsZero() || a.AssignedAt.Before(first) {
				first = a.AssignedAt
			}
		}
		if !first.Before(midnight) {
			stats.HandledToday++
		}
	}

	return stats, nil
}

// OpenConversationCounts returns per-agent open conversation counts.
func (m *MockStore) OpenConversationCounts(ctx context.Context, orgID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for convID, rows := range m.assignments {
		conv, ok := m.conversations[convID]
		if !ok || conv.OrgID != orgID {
			continue
		}
		if conv.Status != StatusOpen && conv.Status != StatusPending {
			continue
		}
		for agentID := range rows {
			counts[agentID]++
		}
	}
	return counts, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// UpsertAgent stores an agent.
func (m *MockStore) UpsertAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := *agent
	if a.Availability == "" {
		a.Availability = AvailabilityOffline
	}
	a.UpdatedAt = time.Now().UTC()
	m.agents[a.ID] = &a
	return nil
}

// SetAgentAvailability updates an agent's availability.
func (m *MockStore) SetAgentAvailability(ctx context.Context, orgID, agentID, availability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok || agent.OrgID != orgID {
		return ErrNotFound
	}
	agent.Availability = availability
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

// GetAgent retrieves an agent scoped to an org.
func (m *MockStore) GetAgent(ctx context.Context, orgID, id string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok || agent.OrgID != orgID {
		return nil, ErrNotFound
	}
	a := *agent
	return &a, nil
}

// ListAgents returns all agents in an org, ordered by id.
func (m *MockStore) ListAgents(ctx context.Context, orgID string) ([]*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var agents []*Agent
	for _, agent := range m.agents {
		if agent.OrgID != orgID {
			continue
		}
		a := *agent
		agents = append(agents, &a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// CreateTeam stores a team.
func (m *MockStore) CreateTeam(ctx context.Context, team *Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.teams[team.ID]; exists {
		return fmt.Errorf("team %s already exists", team.ID)
	}
	t := *team
	m.teams[t.ID] = &t
	return nil
}

// AddTeamMember adds an agent to a team.
func (m *MockStore) AddTeamMember(ctx context.Context, orgID, teamID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	team, ok := m.teams[teamID]
	if !ok || team.OrgID != orgID {
		return ErrNotFound
	}
	if m.teamMembers[teamID] == nil {
		m.teamMembers[teamID] = make(map[string]bool)
	}
	m.teamMembers[teamID][agentID] = true
	return nil
}

// AssignTeamChannel marks a team responsible for a channel.
func (m *MockStore) AssignTeamChannel(ctx context.Context, orgID, teamID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	team, ok := m.teams[teamID]
	if !ok || team.OrgID != orgID {
		return ErrNotFound
	}
	if m.teamChannels[teamID] == nil {
		m.teamChannels[teamID] = make(map[string]bool)
	}
	m.teamChannels[teamID][channelID] = true
	return nil
}

// TeamsForChannel returns team ids responsible for a channel.
func (m *MockStore) TeamsForChannel(ctx context.Context, orgID, channelID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for teamID, channels := range m.teamChannels {
		team, ok := m.teams[teamID]
		if !ok || team.OrgID != orgID {
			continue
		}
		if channels[channelID] {
			ids = append(ids, teamID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// TeamMembers returns agent ids on a team.
func (m *MockStore) TeamMembers(ctx context.Context, orgID, teamID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	team, ok := m.teams[teamID]
	if !ok || team.OrgID != orgID {
		return nil, ErrNotFound
	}
	var ids []string
	for agentID := range m.teamMembers[teamID] {
		ids = append(ids, agentID)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetAssignedAt overrides an assignment's tenure timestamp. Test helper for
// promotion-order scenarios.
func (m *MockStore) SetAssignedAt(conversationID, agentID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row, ok := m.assignments[conversationID][agentID]; ok {
		row.AssignedAt = at
	}
}

// Ensure MockStore implements both store interfaces
var _ AssignmentStore = (*MockStore)(nil)
var _ DirectoryStore = (*MockStore)(nil)
