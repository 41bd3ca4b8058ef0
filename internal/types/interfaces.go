// internal/types/interfaces.go
package types

// MessageLog is the correlation core's mutation and read surface. External
// consumers only ever see snapshots; there is no handle into internal state.
type MessageLog interface {
	Add(msg *Message) bool
	Process(raw *RawMessage) (*Message, bool)
	Related(id MessageID) []*Message
	Messages() []*Message
	Stats() Stats
	Clear()
}

// FeedSink receives enriched messages for fan-out to live consumers.
type FeedSink interface {
	Publish(msg *Message)
}

// AlertSink delivers a rendered alert to one notification channel.
type AlertSink interface {
	Name() string
	Send(target, text string) error
}
