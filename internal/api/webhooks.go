// ABOUTME: Inbound fact webhooks from the messaging subsystem
// ABOUTME: Conversation created/updated and agent availability changed

package api

import (
	"net/http"
	"time"

	"github.com/deskhive/deskrouter/internal/store"
)

type conversationWebhook struct {
	ID          string    `json:"id" validate:"required"`
	ChannelID   string    `json:"channel_id" validate:"required"`
	Priority    string    `json:"priority" validate:"omitempty,oneof=urgent high normal low"`
	Status      string    `json:"status" validate:"omitempty,oneof=open pending resolved closed"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// POST /api/webhooks/conversation
//
// A new conversation enters the queue implicitly by having zero assignment
// rows; no explicit enqueue happens here.
func (s *Server) handleConversationWebhook(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req conversationWebhook
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	conv := &store.Conversation{
		ID:          req.ID,
		OrgID:       identity.OrgID,
		ChannelID:   req.ChannelID,
		Priority:    req.Priority,
		Status:      req.Status,
		UnreadCount: req.UnreadCount,
		CreatedAt:   createdAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.engine.RecordConversation(r.Context(), conv); err != nil {
		s.logger.Error("failed to record conversation", "error", err, "conversation_id", req.ID)
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityWebhook struct {
	AgentID      string `json:"agent_id" validate:"required"`
	Availability string `json:"availability" validate:"required,oneof=online away busy offline"`
}

// POST /api/webhooks/availability
//
// Affects future selector eligibility only; existing assignments stand.
func (s *Server) handleAvailabilityWebhook(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req availabilityWebhook
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.directory.RecordAvailability(r.Context(), identity.OrgID, req.AgentID, req.Availability); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
