// internal/alert/discord.go
package alert

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/user/threatsight/internal/types"
)

const maxDiscordMessage = 2000

// DiscordSink delivers alerts to a Discord channel.
type DiscordSink struct {
	session *discordgo.Session
}

// Compile-time interface compliance check.
var _ types.AlertSink = (*DiscordSink)(nil)

// NewDiscordSink creates a sink from a bot token. Sends go over the REST API,
// so no gateway connection is opened.
func NewDiscordSink(token string) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordSink{session: session}, nil
}

func (d *DiscordSink) Name() string { return "discord" }

// Send posts text to the channel identified by address (a channel ID).
func (d *DiscordSink) Send(address, text string) error {
	if len(text) > maxDiscordMessage {
		text = text[:maxDiscordMessage]
	}
	if _, err := d.session.ChannelMessageSend(address, text); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}
