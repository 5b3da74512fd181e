package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"go.uber.org/zap"
)

// WaitlistService очередь ожидания на занятое время
type WaitlistService struct {
	store     WaitlistStore
	notifier  Notifier
	clock     Clock
	notifyTTL time.Duration
	logger    *zap.Logger
}

func NewWaitlistService(store WaitlistStore, notifier Notifier, clock Clock, notifyTTL time.Duration, logger *zap.Logger) *WaitlistService {
	return &WaitlistService{
		store:     store,
		notifier:  notifier,
		clock:     clock,
		notifyTTL: notifyTTL,
		logger:    logger,
	}
}

// EnqueueRequest запрос на постановку в очередь
type EnqueueRequest struct {
	RequesterID  int64
	OwnerID      int64
	DesiredRange model.TimeRange
	Notes        string
}

// SweepResult итог обработки просроченных уведомлений
type SweepResult struct {
	Expired  []int64 `json:"expired"`
	Notified []int64 `json:"notified"`
}

// WaitEstimate оценка ожидания, только ориентир
type WaitEstimate struct {
	EntryID         int64          `json:"entryId"`
	Position        int            `json:"position"` // 1 - первая в очереди
	EstimatedWait   *time.Duration `json:"-"`
	EstimatedMinute *int           `json:"estimatedWaitMinutes,omitempty"`
	SampleSize      int            `json:"sampleSize"`
}

// Enqueue ставит студента в конец очереди
func (s *WaitlistService) Enqueue(ctx context.Context, req EnqueueRequest) (*model.WaitlistEntry, error) {
	if err := req.DesiredRange.Validate(); err != nil {
		return nil, err
	}

	entry := &model.WaitlistEntry{
		RequesterID:  req.RequesterID,
		OwnerID:      req.OwnerID,
		DesiredRange: req.DesiredRange,
		Bucket:       model.BucketFor(req.OwnerID, req.DesiredRange),
		Status:       model.WaitlistStatusWaiting,
		CreatedAt:    s.clock.Now(),
		Notes:        req.Notes,
	}

	created, err := s.store.Enqueue(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("enqueue waitlist entry: %w", err)
	}

	s.logger.Info("Waitlist entry enqueued",
		zap.Int64("entry_id", created.ID),
		zap.Int64("requester_id", req.RequesterID),
		zap.Int64("owner_id", req.OwnerID),
		zap.String("bucket", string(created.Bucket)),
		zap.Int("priority", created.Priority),
	)
	return created, nil
}

// List записи владельца, опционально по очереди и статусам
func (s *WaitlistService) List(ctx context.Context, ownerID int64, bucket model.Bucket, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	return s.store.GetEntries(ctx, ownerID, bucket, statuses)
}

func (s *WaitlistService) Get(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	if entry == nil {
		return nil, &model.NotFoundError{Entity: "waitlist_entry", ID: id}
	}
	return entry, nil
}

// Promote двигает запись на одну позицию к началу очереди
func (s *WaitlistService) Promote(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	return s.swap(ctx, id, true)
}

// Demote двигает запись на одну позицию к концу очереди
func (s *WaitlistService) Demote(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	return s.swap(ctx, id, false)
}

func (s *WaitlistService) swap(ctx context.Context, id int64, towardFront bool) (*model.WaitlistEntry, error) {
	entry, err := s.store.SwapAdjacent(ctx, id, towardFront)
	if err != nil {
		return nil, fmt.Errorf("swap waitlist priority: %w", err)
	}

	s.logger.Info("Waitlist entry moved",
		zap.Int64("entry_id", id),
		zap.Bool("toward_front", towardFront),
		zap.Int("priority", entry.Priority),
	)
	return entry, nil
}

// Notify сообщает студенту, что время освободилось. ttl 0 - значение по умолчанию.
func (s *WaitlistService) Notify(ctx context.Context, id int64, ttl time.Duration, message string) (*model.WaitlistEntry, error) {
	if ttl <= 0 {
		ttl = s.notifyTTL
	}
	now := s.clock.Now()

	entry, err := s.store.Update(ctx, id, func(e *model.WaitlistEntry) error {
		return e.MarkNotified(now, ttl)
	})
	if err != nil {
		return nil, fmt.Errorf("notify waitlist entry: %w", err)
	}

	s.deliver(ctx, entry, message)
	return entry, nil
}

// Fulfill студент занял освободившееся время
func (s *WaitlistService) Fulfill(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	now := s.clock.Now()
	entry, err := s.store.Update(ctx, id, func(e *model.WaitlistEntry) error {
		return e.Fulfill(now)
	})
	if err != nil {
		return nil, fmt.Errorf("fulfill waitlist entry: %w", err)
	}

	s.logger.Info("Waitlist entry fulfilled",
		zap.Int64("entry_id", id),
		zap.Int64("requester_id", entry.RequesterID),
	)
	return entry, nil
}

// Remove отзывает активную запись
func (s *WaitlistService) Remove(ctx context.Context, id int64) error {
	entry, err := s.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("remove waitlist entry: %w", err)
	}

	s.logger.Info("Waitlist entry removed",
		zap.Int64("entry_id", id),
		zap.String("status", string(entry.Status)),
	)
	return nil
}

// ExpireSweep истекает просроченные уведомления и уведомляет следующего в каждой затронутой очереди.
// Идемпотентна и безопасна при параллельном запуске: переход делает только тот, кто выиграл Expire.
func (s *WaitlistService) ExpireSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	expired, err := s.store.GetExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("get expired waitlist entries: %w", err)
	}

	result := &SweepResult{Expired: []int64{}, Notified: []int64{}}
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, ok, err := s.store.Expire(ctx, candidate.ID, now)
		if err != nil {
			return result, fmt.Errorf("expire waitlist entry %d: %w", candidate.ID, err)
		}
		if !ok {
			continue
		}
		result.Expired = append(result.Expired, entry.ID)

		next, err := s.store.NotifyHead(ctx, entry.OwnerID, entry.Bucket, now, s.notifyTTL)
		if err != nil {
			return result, fmt.Errorf("notify next waitlist entry: %w", err)
		}
		if next != nil {
			result.Notified = append(result.Notified, next.ID)
			s.deliver(ctx, next, "")
		}
	}

	if len(result.Expired) > 0 {
		s.logger.Info("Waitlist sweep finished",
			zap.Int("expired", len(result.Expired)),
			zap.Int("notified", len(result.Notified)),
		)
	}
	return result, nil
}

// SlotReleased уведомляет первых в очередях, чьё окно пересекается с освободившимся слотом
func (s *WaitlistService) SlotReleased(ctx context.Context, slot *model.Slot) error {
	entries, err := s.store.GetEntries(ctx, slot.OwnerID, "", []model.WaitlistStatus{model.WaitlistStatusWaiting})
	if err != nil {
		return fmt.Errorf("get waitlist entries: %w", err)
	}

	var buckets []model.Bucket
	for _, e := range entries {
		if model.Overlaps(e.DesiredRange, slot.Range) && !slices.Contains(buckets, e.Bucket) {
			buckets = append(buckets, e.Bucket)
		}
	}

	now := s.clock.Now()
	for _, bucket := range buckets {
		next, err := s.store.NotifyHead(ctx, slot.OwnerID, bucket, now, s.notifyTTL)
		if err != nil {
			return fmt.Errorf("notify waitlist head: %w", err)
		}
		if next == nil {
			continue
		}
		s.logger.Info("Waitlist head notified on slot release",
			zap.Int64("slot_id", slot.ID),
			zap.Int64("entry_id", next.ID),
			zap.String("bucket", string(bucket)),
		)
		s.deliver(ctx, next, fmt.Sprintf("Освободилось время %s", slot.Range))
	}
	return nil
}

// EstimateWait средний интервал между исполненными записями очереди, умноженный на позицию
func (s *WaitlistService) EstimateWait(ctx context.Context, id int64) (*WaitEstimate, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status.IsTerminal() {
		return nil, &model.InvalidTransitionError{Entity: "waitlist_entry", ID: id, CurrentState: string(entry.Status), Event: "estimate"}
	}

	active, err := s.store.GetEntries(ctx, entry.OwnerID, entry.Bucket, model.ActiveWaitlistStatuses)
	if err != nil {
		return nil, fmt.Errorf("get waitlist entries: %w", err)
	}
	position := 0
	for i, e := range active {
		if e.ID == id {
			position = i + 1
			break
		}
	}

	history, err := s.store.GetEntries(ctx, entry.OwnerID, entry.Bucket, []model.WaitlistStatus{model.WaitlistStatusFulfilled})
	if err != nil {
		return nil, fmt.Errorf("get fulfilled entries: %w", err)
	}

	estimate := &WaitEstimate{EntryID: id, Position: position, SampleSize: len(history)}
	if interval, ok := meanFulfilmentInterval(history); ok {
		wait := interval * time.Duration(position)
		minutes := int(wait.Minutes())
		estimate.EstimatedWait = &wait
		estimate.EstimatedMinute = &minutes
	}
	return estimate, nil
}

// Renumber уплотняет приоритеты очереди
func (s *WaitlistService) Renumber(ctx context.Context, ownerID int64, bucket model.Bucket) error {
	if err := s.store.Renumber(ctx, ownerID, bucket); err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}
	s.logger.Info("Waitlist renumbered", zap.Int64("owner_id", ownerID), zap.String("bucket", string(bucket)))
	return nil
}

func (s *WaitlistService) deliver(ctx context.Context, entry *model.WaitlistEntry, message string) {
	if message == "" {
		message = fmt.Sprintf("Подошла ваша очередь на %s", entry.DesiredRange)
	}

	s.logger.Info("Waitlist entry notified",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("requester_id", entry.RequesterID),
		zap.Timep("expires_at", entry.ExpiresAt),
	)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, entry.RequesterID, message, entry.ExpiresAt); err != nil {
		s.logger.Warn("Failed to deliver waitlist notification",
			zap.Int64("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}

func meanFulfilmentInterval(history []*model.WaitlistEntry) (time.Duration, bool) {
	var fulfilled []*model.WaitlistEntry
	for _, e := range history {
		if e.FulfilledAt != nil {
			fulfilled = append(fulfilled, e)
		}
	}
	switch len(fulfilled) {
	case 0:
		return 0, false
	case 1:
		return fulfilled[0].FulfilledAt.Sub(fulfilled[0].CreatedAt), true
	}

	slices.SortFunc(fulfilled, func(a, b *model.WaitlistEntry) int { return a.FulfilledAt.Compare(*b.FulfilledAt) })
	first, last := fulfilled[0].FulfilledAt, fulfilled[len(fulfilled)-1].FulfilledAt
	return last.Sub(*first) / time.Duration(len(fulfilled)-1), true
}
