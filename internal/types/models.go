// internal/types/models.go
package types

import (
	"time"
)

// MessageType classifies a message exchanged between analysis agents.
type MessageType string

const (
	TypeTaskDelegation    MessageType = "task_delegation"
	TypeDataQuery         MessageType = "data_query"
	TypeResultReturn      MessageType = "result_return"
	TypeValidationRequest MessageType = "validation_request"
	TypeConsensusVote     MessageType = "consensus_vote"
	TypeToolInvocation    MessageType = "tool_invocation"
	TypeErrorReport       MessageType = "error_report"

	// TypeGeneric is the fallback when a message cannot be classified.
	TypeGeneric MessageType = "message"
)

// Priority is an informational ordinal classification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Message is an immutable record of one inter-agent exchange. Once added to
// the log it is never mutated; it leaves the log only by capacity eviction.
type Message struct {
	ID            MessageID      `json:"id"`
	SourceID      AgentID        `json:"source_id"`
	TargetID      AgentID        `json:"target_id"`
	Type          MessageType    `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
	Latency       time.Duration  `json:"latency"`
	Success       bool           `json:"success"`
	Priority      Priority       `json:"priority"`
	CorrelationID CorrelationID  `json:"correlation_id,omitempty"`
	ParentID      MessageID      `json:"parent_id,omitempty"`
	PayloadSize   int            `json:"payload_size"`
	TokenCount    int            `json:"token_count,omitempty"`
}

// RawMessage is a partially-specified inbound event. Every field is optional;
// the ingest path backfills whatever the producer left out.
type RawMessage struct {
	ID            MessageID      `json:"id,omitempty"`
	SourceID      AgentID        `json:"source_id"`
	TargetID      AgentID        `json:"target_id"`
	Type          MessageType    `json:"type,omitempty"`
	Timestamp     time.Time      `json:"timestamp,omitzero"`
	Payload       map[string]any `json:"payload,omitempty"`
	Latency       time.Duration  `json:"latency,omitempty"`
	Success       *bool          `json:"success,omitempty"`
	Priority      Priority       `json:"priority,omitempty"`
	CorrelationID CorrelationID  `json:"correlation_id,omitempty"`
	ParentID      MessageID      `json:"parent_id,omitempty"`
}

// Stats is a point-in-time aggregate over the message log.
type Stats struct {
	Total          int                 `json:"total"`
	ByType         map[MessageType]int `json:"by_type"`
	ByAgent        map[AgentID]int     `json:"by_agent"`
	ByPriority     map[Priority]int    `json:"by_priority"`
	AverageLatency time.Duration       `json:"average_latency"`
	SuccessRate    float64             `json:"success_rate"`
	MessageRate    float64             `json:"message_rate"`
	TotalTokens    int                 `json:"total_tokens"`
}

// CorrelationState is the render snapshot consumed by visualization clients.
type CorrelationState struct {
	SelectedAgentID    AgentID    `json:"selected_agent_id,omitempty"`
	SelectedMessageID  MessageID  `json:"selected_message_id,omitempty"`
	HighlightedNodeIDs []AgentID  `json:"highlighted_node_ids"`
	HighlightedEdgeIDs []string   `json:"highlighted_edge_ids"`
	Messages           []*Message `json:"messages"`
	HasMessages        bool       `json:"has_messages"`
}
