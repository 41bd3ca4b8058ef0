// internal/correlation/selection.go
package correlation

import (
	"sort"

	"github.com/user/threatsight/internal/types"
)

// selection is the Idle / NodeSelected / MessageSelected state machine.
// Exactly one of agentID and messageID may be set; both empty means Idle.
// Highlight sets are derived on entry and never independently settable.
type selection struct {
	agentID   types.AgentID
	messageID types.MessageID
	nodes     map[types.AgentID]struct{}
	edges     map[string]struct{}
}

func idleSelection() selection {
	return selection{
		nodes: map[types.AgentID]struct{}{},
		edges: map[string]struct{}{},
	}
}

// nodeSelection highlights the node itself, every peer of a message touching
// it, and the connecting edges.
func nodeSelection(id types.AgentID, messages []*types.Message) selection {
	sel := idleSelection()
	sel.agentID = id
	sel.nodes[id] = struct{}{}
	for _, m := range messages {
		if m.SourceID != id && m.TargetID != id {
			continue
		}
		sel.nodes[m.SourceID] = struct{}{}
		sel.nodes[m.TargetID] = struct{}{}
		sel.edges[types.EdgeID(m.SourceID, m.TargetID)] = struct{}{}
	}
	return sel
}

// messageSelection highlights exactly the message's endpoints and edge.
func messageSelection(msg *types.Message) selection {
	sel := idleSelection()
	sel.messageID = msg.ID
	sel.nodes[msg.SourceID] = struct{}{}
	sel.nodes[msg.TargetID] = struct{}{}
	sel.edges[types.EdgeID(msg.SourceID, msg.TargetID)] = struct{}{}
	return sel
}

func (sel selection) nodeList() []types.AgentID {
	out := make([]types.AgentID, 0, len(sel.nodes))
	for n := range sel.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (sel selection) edgeList() []string {
	out := make([]string, 0, len(sel.edges))
	for e := range sel.edges {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// revertKey namespaces a message's reversion timer in the task arena.
func revertKey(id types.MessageID) string {
	return "revert:" + string(id)
}

// SelectNode toggles node selection: the same node again returns to Idle, a
// different node moves the selection, and any prior message selection (plus
// its pending reversion) is cleared.
func (s *Store) SelectNode(id types.AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRevertLocked()
	s.selGen++
	if s.sel.agentID == id {
		s.sel = idleSelection()
		return
	}
	s.sel = nodeSelection(id, s.messages)
}

// SelectMessage toggles message selection. Entering MessageSelected schedules
// a timed reversion back to Idle, keyed by the message ID so that reselecting
// the same message replaces the pending timer rather than stacking a stale
// one. A selection made in the interim supersedes the reversion.
func (s *Store) SelectMessage(id types.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelRevertLocked()
	s.selGen++
	if s.sel.messageID == id {
		s.sel = idleSelection()
		return
	}

	msg, ok := s.byID[id]
	if !ok {
		// Unknown IDs never fail the caller; the selection simply clears.
		s.sel = idleSelection()
		return
	}
	s.sel = messageSelection(msg)

	gen := s.selGen
	s.sched.Schedule(revertKey(id), s.revertDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A newer selection owns the highlight now; leave it alone.
		if s.selGen != gen {
			return
		}
		s.sel = idleSelection()
		s.selGen++
	})
}

// ClearSelection returns to Idle regardless of the current state.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRevertLocked()
	s.selGen++
	s.sel = idleSelection()
}

func (s *Store) cancelRevertLocked() {
	if s.sel.messageID != "" {
		s.sched.Cancel(revertKey(s.sel.messageID))
	}
}

// State snapshots selection, highlights, and the full history for renderers.
func (s *Store) State() types.CorrelationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]*types.Message, len(s.messages))
	copy(msgs, s.messages)

	return types.CorrelationState{
		SelectedAgentID:    s.sel.agentID,
		SelectedMessageID:  s.sel.messageID,
		HighlightedNodeIDs: s.sel.nodeList(),
		HighlightedEdgeIDs: s.sel.edgeList(),
		Messages:           msgs,
		HasMessages:        len(msgs) > 0,
	}
}
