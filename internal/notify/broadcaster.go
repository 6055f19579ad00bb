// ABOUTME: In-memory fan-out broadcaster for org-scoped assignment events
// ABOUTME: Feeds live subscribers (SSE) without blocking the write path

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub for assignment events. Subscribers
// register for an organization and receive every event published for it.
// Implements Notifier.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // orgID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for an organization's events. Returns a
// channel and a subscription ID for later unsubscription. The subscription
// is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, orgID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[orgID]; !ok {
		b.subscribers[orgID] = make(map[string]chan *Event)
	}
	b.subscribers[orgID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "org_id", orgID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(orgID, subID)
	}()

	return ch, subID
}

// Publish wraps the payload in an Event and sends it to all subscribers of
// the organization. Non-blocking: events are dropped for subscribers whose
// channels are full.
func (b *Broadcaster) Publish(ctx context.Context, orgID, topic string, payload any) error {
	event := &Event{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	b.mu.RLock()
	subs, ok := b.subscribers[orgID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return nil
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"org_id", orgID,
				"event_id", event.ID)
		}
	}
	return nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(orgID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[orgID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty organization entries
	if len(subs) == 0 {
		delete(b.subscribers, orgID)
	}

	b.logger.Debug("subscriber removed", "org_id", orgID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for orgID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, orgID)
	}

	b.logger.Debug("broadcaster closed")
}

// Ensure Broadcaster implements Notifier
var _ Notifier = (*Broadcaster)(nil)
