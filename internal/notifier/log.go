package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogNotifier пишет уведомления в лог. Используется, когда внешняя доставка не настроена.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, requesterID int64, message string, expiresAt *time.Time) error {
	n.logger.Info("Notification",
		zap.Int64("requester_id", requesterID),
		zap.String("message", message),
		zap.Timep("expires_at", expiresAt),
	)
	return nil
}
