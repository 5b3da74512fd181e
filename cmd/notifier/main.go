package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/tutor_scheduler/internal/app"
	"github.com/Freeeeeet/tutor_scheduler/internal/config"
	"github.com/Freeeeeet/tutor_scheduler/internal/notifier"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Воркер доставки: читает уведомления из RabbitMQ и отправляет их в Telegram
func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	b, err := notifier.NewTelegramBot(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("Failed to create telegram bot", zap.Error(err))
	}
	telegram := notifier.NewTelegramNotifier(b, logger)

	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to rabbitmq", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	if err := notifier.DeclareQueue(ch, cfg.RabbitMQ.Queue); err != nil {
		logger.Fatal("Failed to declare queue", zap.Error(err))
	}

	msgs, err := ch.Consume(
		cfg.RabbitMQ.Queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		logger.Fatal("Failed to consume queue", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Notifier started", zap.String("queue", cfg.RabbitMQ.Queue))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notifier stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Error("Delivery channel closed")
				return
			}
			deliver(ctx, telegram, msg, logger)
		}
	}
}

func deliver(ctx context.Context, telegram *notifier.TelegramNotifier, msg amqp.Delivery, logger *zap.Logger) {
	n, err := notifier.DecodeNotification(msg.Body)
	if err != nil {
		// Битое сообщение в очередь не возвращаем
		logger.Error("Dropping malformed notification", zap.Error(err), zap.ByteString("body", msg.Body))
		_ = msg.Nack(false, false)
		return
	}

	if err := telegram.Send(ctx, n); err != nil {
		logger.Error("Failed to deliver notification", zap.Error(err), zap.Int64("requester_id", n.RequesterID))
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Warn("Failed to ack notification", zap.Error(err))
	}
}
