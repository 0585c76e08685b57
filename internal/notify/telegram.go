package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/abdatta/wappflow/internal/scheduler"
)

// Telegram pushes terminal job outcomes to a single fixed Telegram chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegram constructs a Telegram target, verifying the bot token by
// fetching the bot's own identity once.
func NewTelegram(ctx context.Context, token string, chatID int64) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	if _, err := b.GetMe(ctx); err != nil {
		return nil, fmt.Errorf("telegram bot identity check: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, event scheduler.NotifyEvent) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      Summary(event),
		ParseMode: models.ParseModeMarkdown,
	})
	return err
}
