package notifier

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	"go.uber.org/multierr"
)

// Multi рассылает уведомление всем адаптерам. Ошибка одного не мешает остальным.
type Multi []service.Notifier

func (m Multi) Notify(ctx context.Context, requesterID int64, message string, expiresAt *time.Time) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Notify(ctx, requesterID, message, expiresAt))
	}
	return err
}
