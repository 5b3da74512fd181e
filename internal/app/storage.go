package app

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_scheduler/internal/config"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	"github.com/Freeeeeet/tutor_scheduler/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Storage хранилища, выбранные конфигурацией
type Storage struct {
	Slots    service.SlotStore
	Waitlist service.WaitlistStore
	pool     *pgxpool.Pool
}

// OpenStorage подключается к PostgreSQL и применяет миграции, либо создаёт хранилище в памяти
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage, data will be lost on restart")
		return &Storage{
			Slots:    memory.NewSlotStore(),
			Waitlist: memory.NewWaitlistStore(),
		}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Connected to database", zap.Int32("max_conns", poolCfg.MaxConns))

	if cfg.Database.MigrateOnStart {
		migrator, err := NewMigrator(pool, migrations.FS, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		defer migrator.Close()

		if err := migrator.Run(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Storage{
		Slots:    repository.NewSlotStore(pool),
		Waitlist: repository.NewWaitlistRepository(pool),
		pool:     pool,
	}, nil
}

func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
