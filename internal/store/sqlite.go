// ABOUTME: SQLite implementation of the assignment store using modernc.org/sqlite
// ABOUTME: All multi-step assignment sequences run inside a single transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds so that lexical
// comparison of stored values matches time order (assigned_at tenure
// ordering happens in SQL).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements AssignmentStore and DirectoryStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Serialize writers instead of failing fast; busy errors past the
	// timeout surface as ErrUnavailable and are retried by the engine.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id           TEXT PRIMARY KEY,
			org_id       TEXT NOT NULL,
			channel_id   TEXT NOT NULL,
			priority     TEXT NOT NULL DEFAULT 'normal',
			status       TEXT NOT NULL DEFAULT 'open',
			unread_count INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (priority IN ('urgent', 'high', 'normal', 'low')),
			CHECK (status IN ('open', 'pending', 'resolved', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_org ON conversations(org_id, status);
		CREATE INDEX IF NOT EXISTS idx_conversations_channel ON conversations(org_id, channel_id);

		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			org_id       TEXT NOT NULL,
			name         TEXT NOT NULL,
			active       INTEGER NOT NULL DEFAULT 1,
			availability TEXT NOT NULL DEFAULT 'offline',
			updated_at   TEXT NOT NULL,

			CHECK (availability IN ('online', 'away', 'busy', 'offline'))
		);

		CREATE INDEX IF NOT EXISTS idx_agents_org ON agents(org_id);

		CREATE TABLE IF NOT EXISTS teams (
			id     TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS team_members (
			team_id  TEXT NOT NULL REFERENCES teams(id),
			agent_id TEXT NOT NULL REFERENCES agents(id),
			PRIMARY KEY (team_id, agent_id)
		);

		CREATE TABLE IF NOT EXISTS team_channels (
			team_id    TEXT NOT NULL REFERENCES teams(id),
			channel_id TEXT NOT NULL,
			PRIMARY KEY (team_id, channel_id)
		);

		CREATE INDEX IF NOT EXISTS idx_team_channels_channel ON team_channels(channel_id);

		CREATE TABLE IF NOT EXISTS assignments (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			agent_id        TEXT NOT NULL REFERENCES agents(id),
			is_primary      INTEGER NOT NULL DEFAULT 0,
			assigned_at     TEXT NOT NULL,
			assigned_by     TEXT NOT NULL DEFAULT 'system',
			PRIMARY KEY (conversation_id, agent_id)
		);

		CREATE INDEX IF NOT EXISTS idx_assignments_agent ON assignments(agent_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_primary
			ON assignments(conversation_id) WHERE is_primary = 1;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// isBusy checks if the error is a SQLite lock/busy condition that a caller
// can retry.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}

// wrapTxErr translates retryable SQLite errors into ErrUnavailable.
func wrapTxErr(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkConversation verifies the conversation exists inside the caller's org.
func checkConversation(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, orgID, conversationID string) error {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = ? AND org_id = ?`,
		conversationID, orgID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return wrapTxErr("checking conversation", err)
	}
	return nil
}

// UpsertAssignment creates or updates an assignment row. Demote-old-primary
// and promote-new-primary happen in the same transaction, so two concurrent
// guarded claims can never both end up primary.
func (s *SQLiteStore) UpsertAssignment(ctx context.Context, p UpsertAssignmentParams) (*Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapTxErr("beginning assignment tx", err)
	}
	defer tx.Rollback()

	if err := checkConversation(ctx, tx, p.OrgID, p.ConversationID); err != nil {
		return nil, err
	}

	// The target agent must exist in the same org
	var active bool
	err = tx.QueryRowContext(ctx,
		`SELECT active FROM agents WHERE id = ? AND org_id = ?`,
		p.AgentID, p.OrgID,
	).Scan(&active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapTxErr("checking agent", err)
	}

	var currentPrimary string
	err = tx.QueryRowContext(ctx,
		`SELECT agent_id FROM assignments WHERE conversation_id = ? AND is_primary = 1`,
		p.ConversationID,
	).Scan(&currentPrimary)
	hasPrimary := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, wrapTxErr("checking current primary", err)
	}

	if p.RequireUnclaimed && hasPrimary && currentPrimary != p.AgentID {
		return nil, ErrConflict
	}

	// The first assignment always becomes primary so the conversation is
	// never collaborated-but-ownerless.
	makePrimary := p.MakePrimary || !hasPrimary

	if makePrimary && hasPrimary && currentPrimary != p.AgentID {
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET is_primary = 0 WHERE conversation_id = ? AND is_primary = 1`,
			p.ConversationID,
		); err != nil {
			return nil, wrapTxErr("demoting primary", err)
		}
	}

	assignedBy := p.AssignedBy
	if assignedBy == "" {
		assignedBy = AssignedBySystem
	}
	now := time.Now().UTC()

	// Tenure (assigned_at) survives re-assignment of an existing row.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO assignments (conversation_id, agent_id, is_primary, assigned_at, assigned_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, agent_id) DO UPDATE SET is_primary = excluded.is_primary
	`, p.ConversationID, p.AgentID, boolToInt(makePrimary), now.Format(timeLayout), assignedBy); err != nil {
		// The partial unique index on (conversation_id) WHERE is_primary = 1
		// only trips here when a concurrent writer claimed primary after our
		// read. That is a lost race, not a malformed write.
		if makePrimary && isConstraintViolation(err) {
			return nil, ErrConflict
		}
		return nil, wrapTxErr("upserting assignment", err)
	}

	assignment, err := scanAssignment(tx.QueryRowContext(ctx, `
		SELECT conversation_id, agent_id, is_primary, assigned_at, assigned_by
		FROM assignments WHERE conversation_id = ? AND agent_id = ?
	`, p.ConversationID, p.AgentID))
	if err != nil {
		return nil, wrapTxErr("reading assignment back", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr("committing assignment", err)
	}

	s.logger.Debug("upserted assignment",
		"conversation_id", p.ConversationID,
		"agent_id", p.AgentID,
		"is_primary", assignment.IsPrimary)
	return assignment, nil
}

// DeleteAssignment removes an assignment row. When the primary row goes,
// the earliest-assigned remaining collaborator is promoted in the same
// transaction. A missing row is a quiet no-op.
func (s *SQLiteStore) DeleteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*Assignment, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, wrapTxErr("beginning unassign tx", err)
	}
	defer tx.Rollback()

	if err := checkConversation(ctx, tx, orgID, conversationID); err != nil {
		return nil, false, err
	}

	var wasPrimary bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_primary FROM assignments WHERE conversation_id = ? AND agent_id = ?`,
		conversationID, agentID,
	).Scan(&wasPrimary)
	if err == sql.ErrNoRows {
		// End state already matches caller intent
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapTxErr("checking assignment", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM assignments WHERE conversation_id = ? AND agent_id = ?`,
		conversationID, agentID,
	); err != nil {
		return nil, false, wrapTxErr("deleting assignment", err)
	}

	var promoted *Assignment
	if wasPrimary {
		replacement, err := scanAssignment(tx.QueryRowContext(ctx, `
			SELECT conversation_id, agent_id, is_primary, assigned_at, assigned_by
			FROM assignments
			WHERE conversation_id = ?
			ORDER BY assigned_at ASC, agent_id ASC
			LIMIT 1
		`, conversationID))
		if err != nil && err != sql.ErrNoRows {
			return nil, false, wrapTxErr("finding replacement primary", err)
		}
		if replacement != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE assignments SET is_primary = 1 WHERE conversation_id = ? AND agent_id = ?`,
				conversationID, replacement.AgentID,
			); err != nil {
				return nil, false, wrapTxErr("promoting replacement", err)
			}
			replacement.IsPrimary = true
			promoted = replacement
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, wrapTxErr("committing unassign", err)
	}

	s.logger.Debug("deleted assignment",
		"conversation_id", conversationID,
		"agent_id", agentID,
		"was_primary", wasPrimary)
	return promoted, true, nil
}

// PromoteAssignment makes an existing collaborator the primary agent.
// Returns ErrNotFound when the agent has no assignment row: promotion
// requires prior collaboration, it does not implicitly add the agent.
func (s *SQLiteStore) PromoteAssignment(ctx context.Context, orgID, conversationID, agentID string) (*Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapTxErr("beginning promote tx", err)
	}
	defer tx.Rollback()

	if err := checkConversation(ctx, tx, orgID, conversationID); err != nil {
		return nil, err
	}

	assignment, err := scanAssignment(tx.QueryRowContext(ctx, `
		SELECT conversation_id, agent_id, is_primary, assigned_at, assigned_by
		FROM assignments WHERE conversation_id = ? AND agent_id = ?
	`, conversationID, agentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapTxErr("checking assignment", err)
	}

	if !assignment.IsPrimary {
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET is_primary = 0 WHERE conversation_id = ? AND is_primary = 1`,
			conversationID,
		); err != nil {
			return nil, wrapTxErr("demoting primary", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET is_primary = 1 WHERE conversation_id = ? AND agent_id = ?`,
			conversationID, agentID,
		); err != nil {
			return nil, wrapTxErr("promoting assignment", err)
		}
		assignment.IsPrimary = true
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr("committing promote", err)
	}

	s.logger.Debug("promoted assignment",
		"conversation_id", conversationID,
		"agent_id", agentID)
	return assignment, nil
}

// ListAssignments returns a conversation's agents, primary first, then by
// assignment tenure.
func (s *SQLiteStore) ListAssignments(ctx context.Context, orgID, conversationID string) ([]*AgentAssignment, error) {
	if err := checkConversation(ctx, s.db, orgID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ag.id, ag.org_id, ag.name, ag.active, ag.availability, ag.updated_at,
		       a.is_primary, a.assigned_at
		FROM assignments a
		JOIN agents ag ON ag.id = a.agent_id
		WHERE a.conversation_id = ?
		ORDER BY a.is_primary DESC, a.assigned_at ASC, a.agent_id ASC
	`, conversationID)
	if err != nil {
		return nil, wrapTxErr("querying assignments", err)
	}
	defer rows.Close()

	var result []*AgentAssignment
	for rows.Next() {
		var aa AgentAssignment
		var updatedAtStr, assignedAtStr string
		if err := rows.Scan(
			&aa.Agent.ID,
			&aa.Agent.OrgID,
			&aa.Agent.Name,
			&aa.Agent.Active,
			&aa.Agent.Availability,
			&updatedAtStr,
			&aa.IsPrimary,
			&assignedAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning assignment row: %w", err)
		}
		aa.Agent.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing agent updated_at: %w", err)
		}
		aa.AssignedAt, err = time.Parse(time.RFC3339Nano, assignedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing assigned_at: %w", err)
		}
		result = append(result, &aa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignment rows: %w", err)
	}
	return result, nil
}

// UpsertConversation creates or refreshes a conversation from an inbound
// "conversation created/updated" fact.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	priority := conv.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	status := conv.Status
	if status == "" {
		status = StatusOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, org_id, channel_id, priority, status, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			priority = excluded.priority,
			status = excluded.status,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at
	`,
		conv.ID,
		conv.OrgID,
		conv.ChannelID,
		priority,
		status,
		conv.UnreadCount,
		conv.CreatedAt.UTC().Format(timeLayout),
		conv.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return wrapTxErr("upserting conversation", err)
	}

	s.logger.Debug("upserted conversation", "id", conv.ID, "org_id", conv.OrgID, "status", status)
	return nil
}

// GetConversation retrieves a conversation scoped to an organization.
// Returns ErrNotFound on org mismatch as well as on a missing row.
func (s *SQLiteStore) GetConversation(ctx context.Context, orgID, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, channel_id, priority, status, unread_count, created_at, updated_at
		FROM conversations
		WHERE id = ? AND org_id = ?
	`, id, orgID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapTxErr("querying conversation", err)
	}
	return conv, nil
}

// ListUnassigned returns the waiting queue: open or pending conversations
// with zero assignment rows. Ordering is priority descending, then creation
// time ascending, then id — strict FIFO within a priority tier.
func (s *SQLiteStore) ListUnassigned(ctx context.Context, orgID, channelID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `
		SELECT c.id, c.org_id, c.channel_id, c.priority, c.status, c.unread_count, c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN assignments a ON a.conversation_id = c.id
		WHERE c.org_id = ?
		  AND c.status IN ('open', 'pending')
		  AND a.conversation_id IS NULL
	`
	args := []any{orgID}
	if channelID != "" {
		query += ` AND c.channel_id = ?`
		args = append(args, channelID)
	}
	query += `
		ORDER BY CASE c.priority
			WHEN 'urgent' THEN 4
			WHEN 'high' THEN 3
			WHEN 'normal' THEN 2
			WHEN 'low' THEN 1
			ELSE 0
		END DESC, c.created_at ASC, c.id ASC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapTxErr("querying unassigned conversations", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return conversations, nil
}

// QueueStats computes the aggregate queue view. avgWaitSeconds is the single
// oldest waiting conversation's age divided by the waiting count — a cheap
// proxy agents' mental model depends on, not a per-item average.
func (s *SQLiteStore) QueueStats(ctx context.Context, orgID string, now time.Time) (*QueueStats, error) {
	stats := &QueueStats{}

	var oldest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(c.created_at)
		FROM conversations c
		LEFT JOIN assignments a ON a.conversation_id = c.id
		WHERE c.org_id = ?
		  AND c.status IN ('open', 'pending')
		  AND a.conversation_id IS NULL
	`, orgID).Scan(&stats.Waiting, &oldest)
	if err != nil {
		return nil, wrapTxErr("querying waiting count", err)
	}

	if stats.Waiting > 0 && oldest.Valid {
		oldestAt, err := time.Parse(time.RFC3339Nano, oldest.String)
		if err != nil {
			return nil, fmt.Errorf("parsing oldest created_at: %w", err)
		}
		age := int(now.UTC().Sub(oldestAt).Seconds())
		if age < 0 {
			age = 0
		}
		stats.AvgWaitSeconds = age / stats.Waiting
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN availability = 'online' THEN 1 ELSE 0 END), 0)
		FROM agents
		WHERE org_id = ? AND active = 1
	`, orgID).Scan(&stats.TotalAgents, &stats.OnlineAgents)
	if err != nil {
		return nil, wrapTxErr("querying agent counts", err)
	}

	midnight := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT a.conversation_id, MIN(a.assigned_at) AS first_assigned
			FROM assignments a
			JOIN conversations c ON c.id = a.conversation_id
			WHERE c.org_id = ?
			GROUP BY a.conversation_id
		)
		WHERE first_assigned >= ?
	`, orgID, midnight.Format(timeLayout)).Scan(&stats.HandledToday)
	if err != nil {
		return nil, wrapTxErr("querying handled today", err)
	}

	return stats, nil
}

// OpenConversationCounts returns how many open or pending conversations each
// agent is on (primary or collaborator), for the selector's load snapshot.
// Agents with no open conversations are absent from the map.
func (s *SQLiteStore) OpenConversationCounts(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.agent_id, COUNT(*)
		FROM assignments a
		JOIN conversations c ON c.id = a.conversation_id
		WHERE c.org_id = ? AND c.status IN ('open', 'pending')
		GROUP BY a.agent_id
	`, orgID)
	if err != nil {
		return nil, wrapTxErr("querying open counts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var agentID string
		var count int
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[agentID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return counts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanAssignment scans a single assignment row. Returns sql.ErrNoRows
// unchanged so callers can distinguish absence.
func scanAssignment(row *sql.Row) (*Assignment, error) {
	var a Assignment
	var assignedAtStr string
	err := row.Scan(&a.ConversationID, &a.AgentID, &a.IsPrimary, &assignedAtStr, &a.AssignedBy)
	if err != nil {
		return nil, err
	}
	a.AssignedAt, err = time.Parse(time.RFC3339Nano, assignedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing assigned_at: %w", err)
	}
	return &a, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var createdAtStr, updatedAtStr string
	err := row.Scan(&c.ID, &c.OrgID, &c.ChannelID, &c.Priority, &c.Status, &c.UnreadCount, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func scanConversationRows(rows *sql.Rows) (*Conversation, error) {
	var c Conversation
	var createdAtStr, updatedAtStr string
	if err := rows.Scan(&c.ID, &c.OrgID, &c.ChannelID, &c.Priority, &c.Status, &c.UnreadCount, &createdAtStr, &updatedAtStr); err != nil {
		return nil, fmt.Errorf("scanning conversation row: %w", err)
	}
	var err error
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// Ensure SQLiteStore implements both store interfaces
var _ AssignmentStore = (*SQLiteStore)(nil)
var _ DirectoryStore = (*SQLiteStore)(nil)
