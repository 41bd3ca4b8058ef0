// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type MessageID string
type AgentID string
type CorrelationID string
type AlertID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

func NewAlertID() AlertID {
	return AlertID(uuid.New().String())
}

// EdgeID identifies the rendering edge between two agents as "<source>-<target>".
func EdgeID(source, target AgentID) string {
	return string(source) + "-" + string(target)
}
