// internal/alert/telegram.go
package alert

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/threatsight/internal/types"
)

const maxTelegramMessage = 4096

// TelegramSink delivers alerts to a Telegram chat.
type TelegramSink struct {
	bot *tgbotapi.BotAPI
}

// Compile-time interface compliance check.
var _ types.AlertSink = (*TelegramSink)(nil)

// NewTelegramSink creates a sink from a bot token.
func NewTelegramSink(token string) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramSink{bot: bot}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

// Send posts text to the chat identified by address (a numeric chat ID).
func (t *TelegramSink) Send(address, text string) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", address, err)
	}
	if len(text) > maxTelegramMessage {
		text = text[:maxTelegramMessage]
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
