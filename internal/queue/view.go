// ABOUTME: Read model for the unassigned conversation queue and its statistics
// ABOUTME: Never mutates state; advisory view, not linearized with writes

package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/deskhive/deskrouter/internal/store"
)

// Store defines what the queue view reads.
type Store interface {
	ListUnassigned(ctx context.Context, orgID, channelID string, limit int) ([]*store.Conversation, error)
	QueueStats(ctx context.Context, orgID string, now time.Time) (*store.QueueStats, error)
}

// View derives the waiting list and aggregate statistics from the
// assignment relation plus conversation metadata.
type View struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a queue view. Pass nil logger for default.
func New(st Store, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		store:  st,
		logger: logger.With("component", "queue"),
		now:    time.Now,
	}
}

// ListUnassigned returns waiting conversations: zero assignment rows, status
// open or pending. Ordered by priority descending, then creation time
// ascending (strict FIFO within a tier), ties broken by id.
func (v *View) ListUnassigned(ctx context.Context, orgID, channelID string, limit int) ([]*store.Conversation, error) {
	return v.store.ListUnassigned(ctx, orgID, channelID, limit)
}

// Stats returns the aggregate queue view. avgWaitSeconds is the oldest
// waiting conversation's age divided by the waiting count — a cheap proxy,
// kept as-is because agents' mental model of the number depends on it.
func (v *View) Stats(ctx context.Context, orgID string) (*store.QueueStats, error) {
	return v.store.QueueStats(ctx, orgID, v.now())
}
