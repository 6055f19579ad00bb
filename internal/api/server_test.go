// ABOUTME: HTTP tests for the API surface
// ABOUTME: Exercises auth, queue reads, assignment operations and webhooks end to end

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskrouter/internal/assignment"
	"github.com/deskhive/deskrouter/internal/directory"
	"github.com/deskhive/deskrouter/internal/notify"
	"github.com/deskhive/deskrouter/internal/queue"
	"github.com/deskhive/deskrouter/internal/selector"
	"github.com/deskhive/deskrouter/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	router http.Handler
	store  *store.MockStore
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	m := store.NewMockStore()
	broadcaster := notify.NewBroadcaster(nil)
	t.Cleanup(broadcaster.Close)

	dir := directory.New(m, nil)
	engine := assignment.New(m, dir, broadcaster, nil)

	server := NewServer(Options{
		Engine:      engine,
		Queue:       queue.New(m, nil),
		Directory:   dir,
		Broadcaster: broadcaster,
		JWTSecret:   testSecret,
		DefaultMode: selector.ModeLoadBalanced,
	})
	return &testEnv{router: server.Router(), store: m}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.store.UpsertConversation(ctx, &store.Conversation{
		ID: "conv1", OrgID: "org1", ChannelID: "chan1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, e.store.UpsertAgent(ctx, &store.Agent{
			ID: id, OrgID: "org1", Name: id, Active: true, Availability: store.AvailabilityOnline,
		}))
	}
}

func signToken(t *testing.T, orgID, actorID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejections(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/api/queue", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/queue", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong signing key
	wrong := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OrgID:            "org1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	})
	signed, err := wrong.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/queue", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Missing org claim
	noOrg := signTokenWithClaims(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	})
	rec = env.do(t, http.MethodGet, "/api/queue", noOrg, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func signTokenWithClaims(t *testing.T, claims Claims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestGetQueue(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodGet, "/api/queue", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	conversations := body["conversations"].([]any)
	require.Len(t, conversations, 1)
	first := conversations[0].(map[string]any)
	assert.Equal(t, "conv1", first["id"])

	// Queue reads are org scoped
	otherToken := signToken(t, "org2", "eve")
	rec = env.do(t, http.MethodGet, "/api/queue", otherToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["conversations"])
}

func TestGetQueue_InvalidLimit(t *testing.T) {
	env := setupServer(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodGet, "/api/queue?limit=banana", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodGet, "/api/queue/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["waiting"])
	assert.Equal(t, float64(2), body["online_agents"])
	assert.Equal(t, float64(2), body["total_agents"])
}

func TestTake(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/take", signToken(t, "org1", "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	a := decodeBody(t, rec)["assignment"].(map[string]any)
	assert.Equal(t, "alice", a["agent_id"])
	assert.Equal(t, true, a["is_primary"])
	assert.Equal(t, "alice", a["assigned_by"])

	// Second claimant loses
	rec = env.do(t, http.MethodPost, "/api/conversations/conv1/take", signToken(t, "org1", "bob"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTake_UnknownConversation(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/ghost/take", signToken(t, "org1", "alice"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignAndAgents(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/assign", token,
		map[string]any{"agent_id": "bob", "is_primary": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/conversations/conv1/agents", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	agents := decodeBody(t, rec)["agents"].([]any)
	require.Len(t, agents, 1)
	first := agents[0].(map[string]any)
	assert.Equal(t, "bob", first["agent_id"])
	assert.Equal(t, true, first["is_primary"])
}

func TestAssign_ValidationFailure(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/assign", signToken(t, "org1", "alice"),
		map[string]any{"is_primary": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnassign(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/take", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/conversations/conv1/assign/alice", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Removing an absent row still succeeds
	rec = env.do(t, http.MethodDelete, "/api/conversations/conv1/assign/alice", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSetPrimary(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	env.do(t, http.MethodPost, "/api/conversations/conv1/assign", token,
		map[string]any{"agent_id": "alice", "is_primary": true})
	env.do(t, http.MethodPost, "/api/conversations/conv1/assign", token,
		map[string]any{"agent_id": "bob"})

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/primary", token,
		map[string]any{"agent_id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	a := decodeBody(t, rec)["assignment"].(map[string]any)
	assert.Equal(t, "bob", a["agent_id"])
	assert.Equal(t, true, a["is_primary"])
}

func TestSetPrimary_NotACollaborator(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/primary", signToken(t, "org1", "alice"),
		map[string]any{"agent_id": "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutoAssign(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "alice")

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/autoassign", token,
		map[string]any{"channel_id": "chan1"})
	require.Equal(t, http.StatusOK, rec.Code)

	a := decodeBody(t, rec)["assignment"].(map[string]any)
	assert.Equal(t, true, a["is_primary"])
	assert.Equal(t, "system", a["assigned_by"])
}

func TestAutoAssign_ManualModeReturnsNull(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/autoassign", signToken(t, "org1", "alice"),
		map[string]any{"mode": "manual"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["assignment"])
}

func TestAutoAssign_InvalidMode(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	rec := env.do(t, http.MethodPost, "/api/conversations/conv1/autoassign", signToken(t, "org1", "alice"),
		map[string]any{"mode": "random"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationWebhook(t *testing.T) {
	env := setupServer(t)
	token := signToken(t, "org1", "messaging-service")

	rec := env.do(t, http.MethodPost, "/api/webhooks/conversation", token, map[string]any{
		"id":         "conv-new",
		"channel_id": "chan1",
		"priority":   "urgent",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/queue", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conversations := decodeBody(t, rec)["conversations"].([]any)
	require.Len(t, conversations, 1)
	first := conversations[0].(map[string]any)
	assert.Equal(t, "conv-new", first["id"])
	assert.Equal(t, "urgent", first["priority"])
}

func TestConversationWebhook_RejectsBadPriority(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/webhooks/conversation", signToken(t, "org1", "svc"),
		map[string]any{"id": "c1", "channel_id": "chan1", "priority": "critical"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityWebhook(t *testing.T) {
	env := setupServer(t)
	env.seed(t)
	token := signToken(t, "org1", "presence-service")

	rec := env.do(t, http.MethodPost, "/api/webhooks/availability", token,
		map[string]any{"agent_id": "alice", "availability": "away"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	agent, err := env.store.GetAgent(context.Background(), "org1", "alice")
	require.NoError(t, err)
	assert.Equal(t, store.AvailabilityAway, agent.Availability)

	rec = env.do(t, http.MethodPost, "/api/webhooks/availability", token,
		map[string]any{"agent_id": "ghost", "availability": "away"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStream(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "org1", "alice"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The connected frame arrives before any published event
	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event: connected")
	assert.Contains(t, string(buf[:n]), "subscription_id")
}

func TestOrgScoping_CrossOrgConversationIsInvisible(t *testing.T) {
	env := setupServer(t)
	env.seed(t)

	for _, path := range []string{
		"/api/conversations/conv1/take",
		"/api/conversations/conv1/autoassign",
	} {
		rec := env.do(t, http.MethodPost, path, signToken(t, "org2", "eve"),
			map[string]any{})
		assert.Equal(t, http.StatusNotFound, rec.Code, fmt.Sprintf("path %s", path))
	}
}
