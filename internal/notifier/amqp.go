package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher часть *amqp.Channel, нужная для публикации
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier кладёт уведомления в очередь, доставкой занимается cmd/notifier
type AMQPNotifier struct {
	channel Publisher
	queue   string
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewAMQPNotifier(channel Publisher, queue string, timeout time.Duration, logger *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		channel: channel,
		queue:   queue,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// DeclareQueue объявляет долговечную очередь уведомлений
func DeclareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, requesterID int64, message string, expiresAt *time.Time) error {
	body, err := Notification{
		RequesterID: requesterID,
		Message:     message,
		ExpiresAt:   expiresAt,
		CreatedAt:   n.now(),
	}.Encode()
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	err = n.channel.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	n.logger.Debug("Notification published",
		zap.Int64("requester_id", requesterID),
		zap.String("queue", n.queue),
	)
	return nil
}
