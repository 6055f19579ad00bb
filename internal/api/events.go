// ABOUTME: SSE stream delivering the organization's assignment and queue events
// ABOUTME: Subscribes to the broadcaster; the subscription dies with the request

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// GET /api/events
//
// Streams notify.Event values as SSE. The event name is the topic, the data
// is the JSON envelope.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, subID := s.broadcaster.Subscribe(r.Context(), identity.OrgID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "connected", map[string]string{"subscription_id": subID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, event.Topic, event)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one SSE frame.
func (s *Server) writeSSEEvent(w http.ResponseWriter, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE event", "error", err, "event", name)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
