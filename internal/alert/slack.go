// internal/alert/slack.go
package alert

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/user/threatsight/internal/types"
)

const maxSlackMessage = 4000

// SlackSink delivers alerts to a Slack channel.
type SlackSink struct {
	client *slack.Client
}

// Compile-time interface compliance check.
var _ types.AlertSink = (*SlackSink)(nil)

// NewSlackSink creates a sink from a bot token.
func NewSlackSink(botToken string) *SlackSink {
	return &SlackSink{client: slack.New(botToken)}
}

func (s *SlackSink) Name() string { return "slack" }

// Send posts text to the channel identified by address.
func (s *SlackSink) Send(address, text string) error {
	if len(text) > maxSlackMessage {
		text = text[:maxSlackMessage]
	}
	_, _, err := s.client.PostMessage(address, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
