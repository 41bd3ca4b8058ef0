package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/threatsight/internal/correlation"
	"github.com/user/threatsight/internal/ingest"
	"github.com/user/threatsight/internal/simulation"
	"github.com/user/threatsight/internal/types"
)

func setupServer(t *testing.T) (*Server, *correlation.Store) {
	t.Helper()
	store := correlation.NewStore(correlation.Options{RevertDelay: 50 * time.Millisecond})
	pipe := ingest.New(store, 2)
	return NewServer(store, pipe, nil, nil), store
}

func seedMessage(t *testing.T, store *correlation.Store, id, source, target string) *types.Message {
	t.Helper()
	msg := &types.Message{
		ID:        types.MessageID(id),
		SourceID:  types.AgentID(source),
		TargetID:  types.AgentID(target),
		Type:      types.TypeDataQuery,
		Timestamp: time.Now(),
		Success:   true,
		Priority:  types.PriorityMedium,
	}
	if !store.Add(msg) {
		t.Fatalf("seed message %s rejected", id)
	}
	return msg
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestSubmitEnrichesMessage(t *testing.T) {
	srv, store := setupServer(t)

	body := `{"source_id":"intake","target_id":"scorer","payload":{"query":"SELECT risk FROM accounts"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var msg types.Message
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" {
		t.Error("expected generated message ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected backfilled timestamp")
	}
	if msg.Type != types.TypeDataQuery {
		t.Errorf("expected classified type data_query, got %s", msg.Type)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored message, got %d", store.Len())
	}
}

func TestSubmitRejectsDuplicateAndBadInput(t *testing.T) {
	srv, _ := setupServer(t)

	body := `{"id":"m1","source_id":"a","target_id":"b"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first submit: expected 201, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate submit: expected 409, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"source_id":"a"}`))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing target: expected 400, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}
}

func TestMessagesLimit(t *testing.T) {
	srv, store := setupServer(t)
	seedMessage(t, store, "m1", "a", "b")
	seedMessage(t, store, "m2", "b", "c")
	seedMessage(t, store, "m3", "c", "a")

	req := httptest.NewRequest(http.MethodGet, "/api/messages?limit=2", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var msgs []*types.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m2" || msgs[1].ID != "m3" {
		t.Errorf("expected most recent messages, got %s, %s", msgs[0].ID, msgs[1].ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/messages?limit=oops", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: expected 400, got %d", w.Code)
	}
}

func TestRelatedEndpoint(t *testing.T) {
	srv, store := setupServer(t)
	parent := seedMessage(t, store, "m1", "a", "b")
	child := &types.Message{
		ID:        "m2",
		SourceID:  "b",
		TargetID:  "a",
		Type:      types.TypeResultReturn,
		Timestamp: time.Now(),
		Success:   true,
		Priority:  types.PriorityMedium,
		ParentID:  parent.ID,
	}
	if !store.Add(child) {
		t.Fatal("child rejected")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/messages/m2/related", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var related []*types.Message
	if err := json.NewDecoder(w.Body).Decode(&related); err != nil {
		t.Fatal(err)
	}
	if len(related) != 1 || related[0].ID != "m1" {
		t.Errorf("expected parent m1, got %v", related)
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	srv, store := setupServer(t)
	seedMessage(t, store, "m1", "a", "b")

	req := httptest.NewRequest(http.MethodGet, "/api/messages/m1/analysis", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/messages/nope/analysis", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/messages/m1/unknown", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown subresource: expected 404, got %d", w.Code)
	}
}

func TestClearEndpoint(t *testing.T) {
	srv, store := setupServer(t)
	seedMessage(t, store, "m1", "a", "b")

	req := httptest.NewRequest(http.MethodDelete, "/api/messages", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d messages", store.Len())
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, store := setupServer(t)
	seedMessage(t, store, "m1", "a", "b")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats types.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("expected total 1, got %d", stats.Total)
	}
}

func TestSelectionEndpoints(t *testing.T) {
	srv, store := setupServer(t)
	seedMessage(t, store, "m1", "a", "b")

	req := httptest.NewRequest(http.MethodPost, "/api/selection/node/a", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var state types.CorrelationState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.SelectedAgentID != "a" {
		t.Errorf("expected selected agent a, got %s", state.SelectedAgentID)
	}
	if len(state.HighlightedNodeIDs) != 2 {
		t.Errorf("expected nodes a and b highlighted, got %v", state.HighlightedNodeIDs)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/selection/message/m1", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	state = types.CorrelationState{}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.SelectedMessageID != "m1" {
		t.Errorf("expected selected message m1, got %s", state.SelectedMessageID)
	}
	if state.SelectedAgentID != "" {
		t.Errorf("node selection should be cleared, got %s", state.SelectedAgentID)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/selection", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	state = types.CorrelationState{}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.SelectedAgentID != "" || state.SelectedMessageID != "" {
		t.Error("expected idle selection after clear")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/selection/edge/a-b", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown selection kind: expected 404, got %d", w.Code)
	}
}

func TestSimulationStartSurfacesDriverErrors(t *testing.T) {
	store := correlation.NewStore(correlation.Options{RevertDelay: 50 * time.Millisecond})
	pipe := ingest.New(store, 2)

	scenario := simulation.DefaultScenario()
	scenario.BurstSchedule = "not a cron line"
	driver := simulation.NewDriver(scenario, store, func(raw *types.RawMessage) error { return nil })
	srv := NewServer(store, pipe, nil, driver)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation/start", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid schedule: expected 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp["error"], "burst schedule") {
		t.Errorf("expected schedule error in body, got %q", resp["error"])
	}
}

func TestSimulationStartStopLifecycle(t *testing.T) {
	store := correlation.NewStore(correlation.Options{RevertDelay: 50 * time.Millisecond})
	pipe := ingest.New(store, 2)

	driver := simulation.NewDriver(simulation.DefaultScenario(), store, func(raw *types.RawMessage) error { return nil })
	srv := NewServer(store, pipe, nil, driver)

	req := httptest.NewRequest(http.MethodPost, "/api/simulation/start", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/simulation/start", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("double start: expected 409, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/simulation/stop", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", w.Code)
	}
	if driver.Running() {
		t.Error("driver should be stopped")
	}
}

func TestSimulationUnconfigured(t *testing.T) {
	srv, _ := setupServer(t)

	for _, path := range []string{"/api/simulation/start", "/api/simulation/stop"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestFeedUnconfigured(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "threatsight_messages_ingested_total") {
		t.Error("expected ingest counter in metrics output")
	}
}
