package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/lock"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	"go.uber.org/zap"
)

// SchedulerConfig интервалы фоновых задач
type SchedulerConfig struct {
	SweepInterval      time.Duration
	GenerationInterval time.Duration
	GenerationWeeks    int
	LockTTL            time.Duration
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	slotService      *service.SlotService
	recurringService *service.RecurringService
	waitlistService  *service.WaitlistService
	locker           lock.Locker
	clock            service.Clock
	cfg              SchedulerConfig
	logger           *zap.Logger
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(
	slotService *service.SlotService,
	recurringService *service.RecurringService,
	waitlistService *service.WaitlistService,
	locker lock.Locker,
	clock service.Clock,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Scheduler{
		slotService:      slotService,
		recurringService: recurringService,
		waitlistService:  waitlistService,
		locker:           locker,
		clock:            clock,
		cfg:              cfg,
		logger:           logger,
		stopChan:         make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("generation_interval", s.cfg.GenerationInterval),
	)

	if s.cfg.SweepInterval > 0 {
		s.run(ctx, "sweep", s.cfg.SweepInterval, s.sweep)
	}
	if s.cfg.GenerationInterval > 0 {
		s.run(ctx, "generate", s.cfg.GenerationInterval, s.generateSlots)
	}
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// run запускает задачу сразу и затем по тикеру
func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.locked(ctx, name, task)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.locked(ctx, name, task)
			case <-s.stopChan:
				s.logger.Info("Background task stopped", zap.String("task", name))
				return
			case <-ctx.Done():
				s.logger.Info("Background task cancelled", zap.String("task", name))
				return
			}
		}
	}()
}

// locked выполняет задачу, только если ни один другой экземпляр её сейчас не выполняет
func (s *Scheduler) locked(ctx context.Context, name string, task func(context.Context)) {
	key := "scheduler:" + name
	acquired, value, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire task lock", zap.String("task", name), zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, value); err != nil {
			s.logger.Warn("Failed to release task lock", zap.String("task", name), zap.Error(err))
		}
	}()

	task(ctx)
}

// sweep истекает неподтверждённые назначения и просроченные уведомления очереди
func (s *Scheduler) sweep(ctx context.Context) {
	expired, err := s.slotService.ExpireAssignments(ctx)
	if err != nil {
		s.logger.Error("Failed to expire assignments", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("Expired slot assignments", zap.Int("count", expired))
	}

	if _, err := s.waitlistService.ExpireSweep(ctx, s.clock.Now()); err != nil {
		s.logger.Error("Failed to sweep waitlist", zap.Error(err))
	}
}

// generateSlots продлевает серии всех активных шаблонов
func (s *Scheduler) generateSlots(ctx context.Context) {
	s.logger.Info("Starting automatic slot generation")

	created, err := s.recurringService.ExtendActiveTemplates(ctx, s.cfg.GenerationWeeks)
	if err != nil {
		s.logger.Error("Failed to generate slots", zap.Error(err))
		return
	}

	s.logger.Info("Automatic slot generation completed successfully", zap.Int("slots_created", created))
}
