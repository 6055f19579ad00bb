// ABOUTME: Handlers for the queue and assignment operations
// ABOUTME: Thin JSON adapters over the assignment engine and queue view

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

// assignmentResponse is the wire form of an assignment row.
type assignmentResponse struct {
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	IsPrimary      bool      `json:"is_primary"`
	AssignedAt     time.Time `json:"assigned_at"`
	AssignedBy     string    `json:"assigned_by"`
}

func toAssignmentResponse(a *store.Assignment) *assignmentResponse {
	if a == nil {
		return nil
	}
	return &assignmentResponse{
		ConversationID: a.ConversationID,
		AgentID:        a.AgentID,
		IsPrimary:      a.IsPrimary,
		AssignedAt:     a.AssignedAt,
		AssignedBy:     a.AssignedBy,
	}
}

// conversationSummary is one queue entry.
type conversationSummary struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// decodeAndValidate parses a JSON body and runs struct validation.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

// GET /api/queue?channel_id=&limit=
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	conversations, err := s.queue.ListUnassigned(r.Context(), identity.OrgID, r.URL.Query().Get("channel_id"), limit)
	if err != nil {
		s.logger.Error("failed to list queue", "error", err, "org_id", identity.OrgID)
		writeStoreError(w, err)
		return
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, conversationSummary{
			ID:          c.ID,
			ChannelID:   c.ChannelID,
			Priority:    c.Priority,
			Status:      c.Status,
			UnreadCount: c.UnreadCount,
			CreatedAt:   c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

// GET /api/queue/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	stats, err := s.queue.Stats(r.Context(), identity.OrgID)
	if err != nil {
		s.logger.Error("failed to compute stats", "error", err, "org_id", identity.OrgID)
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"waiting":          stats.Waiting,
		"avg_wait_seconds": stats.AvgWaitSeconds,
		"online_agents":    stats.OnlineAgents,
		"total_agents":     stats.TotalAgents,
		"handled_today":    stats.HandledToday,
	})
}

// POST /api/conversations/{conversationID}/take
//
// Self-service claim: the acting agent becomes primary. A lost race returns
// 409 so the client re-fetches the agent list to show the actual owner.
func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	assignment, err := s.engine.Take(r.Context(), identity.OrgID, conversationID, identity.ActorID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": toAssignmentResponse(assignment)})
}

type assignRequest struct {
	AgentID   string `json:"agent_id" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// POST /api/conversations/{conversationID}/assign
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req assignRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	assignment, err := s.engine.Assign(r.Context(), identity.OrgID, conversationID, req.AgentID, req.IsPrimary, identity.ActorID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": toAssignmentResponse(assignment)})
}

// DELETE /api/conversations/{conversationID}/assign/{agentID}
func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")
	agentID := chi.URLParam(r, "agentID")

	if err := s.engine.Unassign(r.Context(), identity.OrgID, conversationID, agentID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPrimaryRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// POST /api/conversations/{conversationID}/primary
func (s *Server) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req setPrimaryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	assignment, err := s.engine.SetPrimary(r.Context(), identity.OrgID, conversationID, req.AgentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": toAssignmentResponse(assignment)})
}

type autoAssignRequest struct {
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode" validate:"omitempty,oneof=manual round_robin load_balanced team_based"`
}

// POST /api/conversations/{conversationID}/autoassign
//
// A null assignment in the response means no eligible agent existed — an
// expected outcome, not an error.
func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req autoAssignRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	mode := s.defaultMode
	if req.Mode != "" {
		mode = selector.Mode(req.Mode)
	}

	assignment, err := s.engine.AutoAssign(r.Context(), identity.OrgID, conversationID, req.ChannelID, mode)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": toAssignmentResponse(assignment)})
}

// agentEntry is one row in the agents-for-conversation response.
type agentEntry struct {
	AgentID      string    `json:"agent_id"`
	Name         string    `json:"name"`
	Availability string    `json:"availability"`
	IsPrimary    bool      `json:"is_primary"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// GET /api/conversations/{conversationID}/agents
func (s *Server) handleAgentsFor(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	assignments, err := s.engine.AgentsFor(r.Context(), identity.OrgID, conversationID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	entries := make([]agentEntry, 0, len(assignments))
	for _, aa := range assignments {
		entries = append(entries, agentEntry{
			AgentID:      aa.Agent.ID,
			Name:         aa.Agent.Name,
			Availability: aa.Agent.Availability,
			IsPrimary:    aa.IsPrimary,
			AssignedAt:   aa.AssignedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": entries})
}
