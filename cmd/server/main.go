package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/tutor_scheduler/internal/app"
	"github.com/Freeeeeet/tutor_scheduler/internal/config"
	"github.com/Freeeeeet/tutor_scheduler/internal/controller/handlers"
	"github.com/Freeeeeet/tutor_scheduler/internal/lock"
	"github.com/Freeeeeet/tutor_scheduler/internal/notifier"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting tutor scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.StorageDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	notifiers := notifier.Multi{notifier.NewLogNotifier(logger)}

	// С RabbitMQ уведомления доставляет cmd/notifier, без него сервер шлёт в Telegram сам
	switch {
	case cfg.RabbitMQ.DSN != "":
		conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open rabbitmq channel: %w", err)
		}
		defer ch.Close()

		if err := notifier.DeclareQueue(ch, cfg.RabbitMQ.Queue); err != nil {
			return err
		}
		notifiers = append(notifiers, notifier.NewAMQPNotifier(ch, cfg.RabbitMQ.Queue, cfg.RabbitMQ.PublishTimeout, logger))
		logger.Info("Notifications are published to RabbitMQ", zap.String("queue", cfg.RabbitMQ.Queue))
	case cfg.TelegramToken != "":
		b, err := notifier.NewTelegramBot(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notifier.NewTelegramNotifier(b, logger))
		logger.Info("Notifications are sent to Telegram directly")
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		locker = lock.NewRedisLocker(rdb, "tutor_scheduler:", logger)
		logger.Info("Background tasks are guarded by redis locks", zap.String("addr", cfg.Redis.Addr))
	}

	clock := service.SystemClock()
	detector := service.NewConflictDetector(storage.Slots, clock, cfg.Scheduling.DetectionHorizonWeek, logger)
	waitlistService := service.NewWaitlistService(storage.Waitlist, notifiers, clock, cfg.Scheduling.WaitlistNotifyTTL, logger)
	slotService := service.NewSlotService(storage.Slots, detector, notifiers, waitlistService, clock, cfg.Scheduling.AssignmentTTL, logger)
	recurringService := service.NewRecurringService(storage.Slots, detector, notifiers, clock, logger)
	resolver := service.NewConflictResolver(storage.Slots, detector, logger)

	scheduler := app.NewScheduler(slotService, recurringService, waitlistService, locker, clock, app.SchedulerConfig{
		SweepInterval:      cfg.Scheduling.SweepInterval,
		GenerationInterval: cfg.Scheduling.GenerationInterval,
		GenerationWeeks:    cfg.Scheduling.GenerationWeeks,
		LockTTL:            cfg.Redis.LockTTL,
	}, logger)

	handler, err := handlers.NewHandler(slotService, recurringService, waitlistService, detector, resolver, clock, logger)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	handler.RegisterRoutes(handlers.Options{
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
