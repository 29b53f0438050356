// Package notify delivers job status notifications to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/rmarkelov/archivarius/internal/config"
)

// Notifier sends short status messages to the configured operators.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// New creates a Telegram-backed notifier, or a no-op one when no bot token
// is configured.
func New(cfg config.TelegramConfig, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Token == "" || len(cfg.ChatIDs) == 0 {
		logger.Info("Telegram notifications disabled")
		return noopNotifier{}, nil
	}

	b, err := bot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &telegramNotifier{
		bot:     b,
		chatIDs: cfg.ChatIDs,
		logger:  logger.With("component", "notifier"),
	}, nil
}

type telegramNotifier struct {
	bot     *bot.Bot
	chatIDs []int64
	logger  *slog.Logger
}

// Notify sends the message to every configured chat. A delivery failure to
// one chat is logged and does not block the others.
func (n *telegramNotifier) Notify(ctx context.Context, message string) error {
	var lastErr error
	for _, chatID := range n.chatIDs {
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   message,
		})
		if err != nil {
			n.logger.WarnContext(ctx, "Failed to deliver notification",
				"chat_id", chatID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) error { return nil }
