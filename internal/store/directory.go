// ABOUTME: DirectoryStore methods on SQLiteStore for agents, teams and channel responsibilities
// ABOUTME: Availability facts are written here; everything else is read-mostly

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertAgent creates or refreshes an agent record.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *Agent) error {
	availability := agent.Availability
	if availability == "" {
		availability = AvailabilityOffline
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, org_id, name, active, availability, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			availability = excluded.availability,
			updated_at = excluded.updated_at
	`,
		agent.ID,
		agent.OrgID,
		agent.Name,
		agent.Active,
		availability,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return wrapTxErr("upserting agent", err)
	}

	s.logger.Debug("upserted agent", "id", agent.ID, "availability", availability)
	return nil
}

// SetAgentAvailability records an "agent availability changed" fact.
// It affects future selector eligibility only; existing assignments stand.
func (s *SQLiteStore) SetAgentAvailability(ctx context.Context, orgID, agentID, availability string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET availability = ?, updated_at = ? WHERE id = ? AND org_id = ?
	`, availability, time.Now().UTC().Format(timeLayout), agentID, orgID)
	if err != nil {
		return wrapTxErr("updating availability", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("availability changed", "agent_id", agentID, "availability", availability)
	return nil
}

// GetAgent retrieves an agent scoped to an organization.
func (s *SQLiteStore) GetAgent(ctx context.Context, orgID, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, active, availability, updated_at
		FROM agents
		WHERE id = ? AND org_id = ?
	`, id, orgID)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapTxErr("querying agent", err)
	}
	return agent, nil
}

// ListAgents returns all agents in an organization, ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context, orgID string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, active, availability, updated_at
		FROM agents
		WHERE org_id = ?
		ORDER BY id
	`, orgID)
	if err != nil {
		return nil, wrapTxErr("querying agents", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		var updatedAtStr string
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.Active, &a.Availability, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing agent updated_at: %w", err)
		}
		agents = append(agents, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// CreateTeam creates a team.
func (s *SQLiteStore) CreateTeam(ctx context.Context, team *Team) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, org_id, name) VALUES (?, ?, ?)`,
		team.ID, team.OrgID, team.Name,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("team %s already exists", team.ID)
		}
		return wrapTxErr("inserting team", err)
	}
	return nil
}

// AddTeamMember adds an agent to a team. Adding an existing member is a no-op.
func (s *SQLiteStore) AddTeamMember(ctx context.Context, orgID, teamID, agentID string) error {
	if err := s.checkTeam(ctx, orgID, teamID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO team_members (team_id, agent_id) VALUES (?, ?)`,
		teamID, agentID,
	)
	if err != nil {
		return wrapTxErr("inserting team member", err)
	}
	return nil
}

// AssignTeamChannel marks a team as responsible for a channel.
func (s *SQLiteStore) AssignTeamChannel(ctx context.Context, orgID, teamID, channelID string) error {
	if err := s.checkTeam(ctx, orgID, teamID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO team_channels (team_id, channel_id) VALUES (?, ?)`,
		teamID, channelID,
	)
	if err != nil {
		return wrapTxErr("inserting team channel", err)
	}
	return nil
}

// TeamsForChannel returns the ids of teams responsible for a channel.
func (s *SQLiteStore) TeamsForChannel(ctx context.Context, orgID, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tc.team_id
		FROM team_channels tc
		JOIN teams t ON t.id = tc.team_id
		WHERE t.org_id = ? AND tc.channel_id = ?
		ORDER BY tc.team_id
	`, orgID, channelID)
	if err != nil {
		return nil, wrapTxErr("querying channel teams", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// TeamMembers returns the agent ids on a team.
func (s *SQLiteStore) TeamMembers(ctx context.Context, orgID, teamID string) ([]string, error) {
	if err := s.checkTeam(ctx, orgID, teamID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id FROM team_members WHERE team_id = ? ORDER BY agent_id
	`, teamID)
	if err != nil {
		return nil, wrapTxErr("querying team members", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (s *SQLiteStore) checkTeam(ctx context.Context, orgID, teamID string) error {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM teams WHERE id = ? AND org_id = ?`,
		teamID, orgID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return wrapTxErr("checking team", err)
	}
	return nil
}

func scanAgent(row *sql.Row) (*Agent, error) {
	var a Agent
	var updatedAtStr string
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Active, &a.Availability, &updatedAtStr)
	if err != nil {
		return nil, err
	}
	a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return ids, nil
}
