// ABOUTME: Read-only agent directory view: identity, availability, team membership
// ABOUTME: Builds the workload snapshot the selector runs against

package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

// Store defines what the directory needs from storage. The production store
// backs it with the shared database; a deployment with an external identity
// service would implement the reads against that instead.
type Store interface {
	ListAgents(ctx context.Context, orgID string) ([]*store.Agent, error)
	GetAgent(ctx context.Context, orgID, id string) (*store.Agent, error)
	UpsertAgent(ctx context.Context, agent *store.Agent) error
	SetAgentAvailability(ctx context.Context, orgID, agentID, availability string) error
	TeamsForChannel(ctx context.Context, orgID, channelID string) ([]string, error)
	TeamMembers(ctx context.Context, orgID, teamID string) ([]string, error)
	OpenConversationCounts(ctx context.Context, orgID string) (map[string]int, error)
}

// Service is the agent directory.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a directory service. Pass nil logger for default.
func New(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "directory"),
	}
}

// Snapshot assembles the selector input for one organization and channel:
// every agent with its availability and channel-relevant team memberships,
// the teams responsible for the channel, and per-agent open-conversation
// counts. The snapshot is live data, not a consistent point-in-time view.
func (s *Service) Snapshot(ctx context.Context, orgID, channelID string) (selector.Snapshot, error) {
	agents, err := s.store.ListAgents(ctx, orgID)
	if err != nil {
		return selector.Snapshot{}, fmt.Errorf("listing agents: %w", err)
	}

	var channelTeams []string
	if channelID != "" {
		channelTeams, err = s.store.TeamsForChannel(ctx, orgID, channelID)
		if err != nil {
			return selector.Snapshot{}, fmt.Errorf("resolving channel teams: %w", err)
		}
	}

	// Membership is only consulted against the channel's teams, so only
	// those rosters are fetched.
	memberTeams := make(map[string][]string)
	for _, teamID := range channelTeams {
		members, err := s.store.TeamMembers(ctx, orgID, teamID)
		if err != nil {
			return selector.Snapshot{}, fmt.Errorf("listing team members: %w", err)
		}
		for _, agentID := range members {
			memberTeams[agentID] = append(memberTeams[agentID], teamID)
		}
	}

	load, err := s.store.OpenConversationCounts(ctx, orgID)
	if err != nil {
		return selector.Snapshot{}, fmt.Errorf("loading workload counts: %w", err)
	}

	snap := selector.Snapshot{
		ChannelTeams: channelTeams,
		Load:         load,
	}
	for _, a := range agents {
		snap.Agents = append(snap.Agents, selector.Candidate{
			ID:           a.ID,
			Active:       a.Active,
			Availability: a.Availability,
			TeamIDs:      memberTeams[a.ID],
		})
	}
	return snap, nil
}

// Agent returns one agent scoped to the organization.
func (s *Service) Agent(ctx context.Context, orgID, agentID string) (*store.Agent, error) {
	return s.store.GetAgent(ctx, orgID, agentID)
}

// RecordAvailability applies an "agent availability changed" fact. It never
// touches existing assignments; only future selector eligibility changes.
func (s *Service) RecordAvailability(ctx context.Context, orgID, agentID, availability string) error {
	switch availability {
	case store.AvailabilityOnline, store.AvailabilityAway, store.AvailabilityBusy, store.AvailabilityOffline:
	default:
		return fmt.Errorf("invalid availability %q", availability)
	}

	if err := s.store.SetAgentAvailability(ctx, orgID, agentID, availability); err != nil {
		return err
	}

	s.logger.Info("agent availability changed",
		"org_id", orgID,
		"agent_id", agentID,
		"availability", availability)
	return nil
}

// RegisterAgent creates or refreshes an agent record.
func (s *Service) RegisterAgent(ctx context.Context, agent *store.Agent) error {
	if agent.ID == "" || agent.OrgID == "" {
		return fmt.Errorf("agent id and org id are required")
	}
	return s.store.UpsertAgent(ctx, agent)
}
