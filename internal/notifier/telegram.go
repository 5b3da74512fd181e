package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, нужная для отправки
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier отправляет уведомление в личный чат. ID студента совпадает с chat id.
type TelegramNotifier struct {
	sender MessageSender
	logger *zap.Logger
}

func NewTelegramNotifier(sender MessageSender, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		logger: logger,
	}
}

// NewTelegramBot клиент Bot API без обработчиков входящих сообщений
func NewTelegramBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, requesterID int64, message string, expiresAt *time.Time) error {
	return n.Send(ctx, Notification{RequesterID: requesterID, Message: message, ExpiresAt: expiresAt})
}

func (n *TelegramNotifier) Send(ctx context.Context, notification Notification) error {
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: notification.RequesterID,
		Text:   notification.Text(),
	})
	if err != nil {
		return fmt.Errorf("send telegram message to %d: %w", notification.RequesterID, err)
	}

	n.logger.Info("Telegram notification sent", zap.Int64("requester_id", notification.RequesterID))
	return nil
}
