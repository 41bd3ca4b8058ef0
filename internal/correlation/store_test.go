// internal/correlation/store_test.go
package correlation

import (
	"fmt"
	"testing"
	"time"

	"github.com/user/threatsight/internal/types"
)

func testMessage(id string, source, target types.AgentID) *types.Message {
	return &types.Message{
		ID:        types.MessageID(id),
		SourceID:  source,
		TargetID:  target,
		Type:      types.TypeDataQuery,
		Timestamp: time.Now(),
		Latency:   100 * time.Millisecond,
		Success:   true,
		Priority:  types.PriorityMedium,
	}
}

func TestStoreBoundedEviction(t *testing.T) {
	store := NewStore(Options{Capacity: 5})

	for i := 0; i < 6; i++ {
		store.Add(testMessage(fmt.Sprintf("msg-%d", i), "a", "b"))
	}

	msgs := store.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		want := types.MessageID(fmt.Sprintf("msg-%d", i+1))
		if m.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, m.ID)
		}
	}
	if got := store.Related("msg-0"); len(got) != 0 {
		t.Errorf("evicted message should be unknown, got %d related", len(got))
	}
}

func TestStoreDuplicateRejected(t *testing.T) {
	store := NewStore(Options{})

	first := testMessage("dup", "a", "b")
	if !store.Add(first) {
		t.Fatal("first insert should succeed")
	}

	second := testMessage("dup", "x", "y")
	if store.Add(second) {
		t.Error("duplicate insert should be rejected")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 message, got %d", store.Len())
	}
	if got := store.Messages()[0].SourceID; got != "a" {
		t.Errorf("duplicate must not overwrite, source became %s", got)
	}
}

func TestProcessBackfillsDefaults(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(Options{Clock: func() time.Time { return fixed }})

	msg, added := store.Process(&types.RawMessage{
		SourceID: "triage",
		TargetID: "scorer",
		Payload:  map[string]any{"note": "hello"},
	})
	if !added {
		t.Fatal("expected insert")
	}
	if msg.ID == "" {
		t.Error("expected generated ID")
	}
	if !msg.Timestamp.Equal(fixed) {
		t.Errorf("expected stamped time %v, got %v", fixed, msg.Timestamp)
	}
	if msg.Latency <= 0 {
		t.Error("expected pseudo-latency")
	}
	if !msg.Success {
		t.Error("success should default to true")
	}
	if msg.Priority != types.PriorityMedium {
		t.Errorf("expected medium priority, got %s", msg.Priority)
	}
	if msg.PayloadSize == 0 {
		t.Error("expected payload size metric")
	}
}

func TestProcessExplicitFailureKept(t *testing.T) {
	store := NewStore(Options{})
	failed := false

	msg, _ := store.Process(&types.RawMessage{
		SourceID: "a", TargetID: "b", Success: &failed,
	})
	if msg.Success {
		t.Error("explicit success=false must be preserved")
	}
}

func TestProcessClassifiesUntyped(t *testing.T) {
	store := NewStore(Options{})

	msg, _ := store.Process(&types.RawMessage{
		SourceID: "a",
		TargetID: "b",
		Payload:  map[string]any{"vote": "approve", "round": 2, "confidence": 0.8},
	})
	if msg.Type != types.TypeConsensusVote {
		t.Errorf("expected consensus_vote, got %s", msg.Type)
	}

	plain, _ := store.Process(&types.RawMessage{SourceID: "a", TargetID: "b"})
	if plain.Type != types.TypeGeneric {
		t.Errorf("expected generic fallback, got %s", plain.Type)
	}
}

func TestProcessDuplicateReturnsRecord(t *testing.T) {
	store := NewStore(Options{})
	store.Add(testMessage("known", "a", "b"))

	msg, added := store.Process(&types.RawMessage{ID: "known", SourceID: "x", TargetID: "y"})
	if added {
		t.Error("duplicate should not be inserted")
	}
	if msg == nil || msg.ID != "known" {
		t.Error("caller should still receive the enriched record")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 message, got %d", store.Len())
	}
}

func TestRelatedByCorrelationID(t *testing.T) {
	store := NewStore(Options{})
	for i := 0; i < 3; i++ {
		m := testMessage(fmt.Sprintf("cx-%d", i), "a", "b")
		m.CorrelationID = "X"
		store.Add(m)
	}
	other := testMessage("other", "a", "b")
	store.Add(other)

	related := store.Related("cx-1")
	if len(related) != 2 {
		t.Fatalf("expected 2 related, got %d", len(related))
	}
	got := map[types.MessageID]bool{}
	for _, m := range related {
		got[m.ID] = true
	}
	if !got["cx-0"] || !got["cx-2"] {
		t.Errorf("expected cx-0 and cx-2, got %v", got)
	}
	if got["cx-1"] {
		t.Error("queried message must be excluded from its own group")
	}
}

func TestRelatedParentAndChildren(t *testing.T) {
	store := NewStore(Options{})
	store.Add(testMessage("root", "a", "b"))

	child := testMessage("child", "b", "c")
	child.ParentID = "root"
	store.Add(child)

	grandchild := testMessage("grandchild", "c", "d")
	grandchild.ParentID = "child"
	store.Add(grandchild)

	related := store.Related("child")
	if len(related) != 2 {
		t.Fatalf("expected parent and child, got %d", len(related))
	}
	if related[0].ID != "root" {
		t.Errorf("expected parent first, got %s", related[0].ID)
	}
	if related[1].ID != "grandchild" {
		t.Errorf("expected child second, got %s", related[1].ID)
	}
}

func TestRelatedDanglingParentTolerated(t *testing.T) {
	store := NewStore(Options{})
	orphan := testMessage("orphan", "a", "b")
	orphan.ParentID = "long-gone"
	store.Add(orphan)

	if got := store.Related("orphan"); len(got) != 0 {
		t.Errorf("dangling parent should yield nothing, got %d", len(got))
	}
}

func TestRelatedUnknownIDEmpty(t *testing.T) {
	store := NewStore(Options{})
	related := store.Related("nope")
	if related == nil {
		t.Fatal("expected empty slice, not nil")
	}
	if len(related) != 0 {
		t.Errorf("expected empty, got %d", len(related))
	}
}

func TestClearResetsEverything(t *testing.T) {
	store := NewStore(Options{})
	store.Add(testMessage("m1", "a", "b"))
	store.SelectNode("a")
	store.Clear()

	if store.Len() != 0 {
		t.Errorf("expected empty log, got %d", store.Len())
	}
	state := store.State()
	if state.SelectedAgentID != "" || state.SelectedMessageID != "" {
		t.Error("selection should reset with the log")
	}
	if len(state.HighlightedNodeIDs) != 0 || len(state.HighlightedEdgeIDs) != 0 {
		t.Error("highlight sets should be empty after clear")
	}
	if state.HasMessages {
		t.Error("hasMessages should be false after clear")
	}
}

func TestNegativeLatencyClamped(t *testing.T) {
	store := NewStore(Options{})
	m := testMessage("neg", "a", "b")
	m.Latency = -time.Second
	store.Add(m)
	if got := store.Messages()[0].Latency; got != 0 {
		t.Errorf("expected latency clamped to 0, got %v", got)
	}
}
