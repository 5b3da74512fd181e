package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"go.uber.org/zap"
)

type SlotService struct {
	store         SlotStore
	detector      *ConflictDetector
	notifier      Notifier
	releases      SlotReleaseHandler
	clock         Clock
	assignmentTTL time.Duration
	logger        *zap.Logger
}

func NewSlotService(
	store SlotStore,
	detector *ConflictDetector,
	notifier Notifier,
	releases SlotReleaseHandler,
	clock Clock,
	assignmentTTL time.Duration,
	logger *zap.Logger,
) *SlotService {
	return &SlotService{
		store:         store,
		detector:      detector,
		notifier:      notifier,
		releases:      releases,
		clock:         clock,
		assignmentTTL: assignmentTTL,
		logger:        logger,
	}
}

// CreateSlotRequest параметры создания слота
type CreateSlotRequest struct {
	OwnerID int64
	Range   model.TimeRange
	Subject string
	Status  model.SlotStatus // available (по умолчанию) или unavailable
	Force   bool             // создать даже при пересечениях
}

// CreateSlot создаёт слот после проверки пересечений.
// При конфликте возвращает SlotUnavailableError с отчётом, чтобы клиент мог предложить очередь.
func (s *SlotService) CreateSlot(ctx context.Context, req CreateSlotRequest) (*model.Slot, error) {
	slot, err := model.NewSlot(req.OwnerID, req.Range, req.Subject, req.Status)
	if err != nil {
		return nil, err
	}

	if !req.Force {
		reports, err := s.detector.Detect(ctx, req.OwnerID, []model.TimeRange{req.Range}, DetectOptions{})
		if err != nil {
			return nil, fmt.Errorf("detect conflicts: %w", err)
		}
		if report := reports[0]; report.HasConflicts() {
			return nil, &model.SlotUnavailableError{
				Range:     req.Range,
				Reason:    "time range conflicts with existing schedule",
				Conflicts: &report,
			}
		}
	}

	// Пересечения перепроверяются хранилищем в момент записи
	created, err := s.store.CreateSlots(ctx, []*model.Slot{slot}, !req.Force)
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("Slot created",
		zap.Int64("slot_id", created[0].ID),
		zap.Int64("owner_id", req.OwnerID),
		zap.Stringer("range", req.Range),
		zap.Bool("force", req.Force),
	)

	return created[0], nil
}

// GetSlot возвращает слот или NotFoundError
func (s *SlotService) GetSlot(ctx context.Context, id int64) (*model.Slot, error) {
	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, &model.NotFoundError{Entity: "slot", ID: id}
	}
	return slot, nil
}

// ListSlots слоты владельца за период
func (s *SlotService) ListSlots(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.Slot, error) {
	if to.Before(from) {
		return nil, &model.InvalidRangeError{Reason: "period end is before its start"}
	}
	return s.store.GetSlots(ctx, ownerID, from, to)
}

// GetSlotBookings история бронирований слота
func (s *SlotService) GetSlotBookings(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	if _, err := s.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	return s.store.GetBookings(ctx, slotID)
}

// AssignSlot предлагает слот студенту на время ttl (0 - значение по умолчанию)
func (s *SlotService) AssignSlot(ctx context.Context, slotID, studentID int64, ttl time.Duration) (*model.Slot, error) {
	if ttl <= 0 {
		ttl = s.assignmentTTL
	}
	return s.apply(ctx, slotID, model.Transition{Event: model.EventAssign, StudentID: studentID, TTL: ttl})
}

// BookSlot бронирует слот: напрямую, если он свободен, или подтверждением назначения.
// Проигравший в гонке получает SlotUnavailableError.
func (s *SlotService) BookSlot(ctx context.Context, slotID, studentID int64) (*model.Slot, error) {
	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	event := model.EventDirectBook
	switch slot.Status {
	case model.SlotStatusAvailable:
	case model.SlotStatusAssigned:
		event = model.EventConfirm
	case model.SlotStatusBooked:
		return nil, &model.SlotUnavailableError{SlotID: slotID, Range: slot.Range, Reason: "slot is already booked"}
	default:
		return nil, &model.InvalidTransitionError{
			Entity:       "slot",
			ID:           slotID,
			CurrentState: string(slot.Status),
			Event:        string(event),
		}
	}

	booked, err := s.apply(ctx, slotID, model.Transition{Event: event, StudentID: studentID})
	if err != nil {
		// Слот заняли между чтением и записью
		var transitionErr *model.InvalidTransitionError
		if errors.As(err, &transitionErr) && takenState(transitionErr.CurrentState) {
			return nil, &model.SlotUnavailableError{SlotID: slotID, Range: slot.Range, Reason: "slot was taken concurrently"}
		}
		return nil, err
	}
	return booked, nil
}

func takenState(state string) bool {
	return state == string(model.SlotStatusBooked) || state == string(model.SlotStatusAssigned)
}

// DeclineSlot студент отказывается от назначенного слота
func (s *SlotService) DeclineSlot(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventDecline})
}

// CancelSlot отменяет бронирование, слот снова свободен
func (s *SlotService) CancelSlot(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventCancel})
}

// CompleteSlot отмечает занятие проведённым
func (s *SlotService) CompleteSlot(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventComplete})
}

func (s *SlotService) MarkAvailable(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventMarkAvailable})
}

func (s *SlotService) MarkUnavailable(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventMarkUnavailable})
}

// WithdrawSlot снимает незанятый слот с расписания, запись остаётся для истории
func (s *SlotService) WithdrawSlot(ctx context.Context, slotID int64) (*model.Slot, error) {
	return s.apply(ctx, slotID, model.Transition{Event: model.EventWithdraw})
}

// DeleteSlot удаляет слот. Занятый слот удаляется только с force, студент получает уведомление.
func (s *SlotService) DeleteSlot(ctx context.Context, slotID int64, force bool) error {
	deleted, err := s.store.DeleteSlot(ctx, slotID, force)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	s.logger.Info("Slot deleted",
		zap.Int64("slot_id", slotID),
		zap.String("status", string(deleted.Status)),
		zap.Bool("force", force),
	)

	if deleted.HasStudent() {
		s.notifyStudent(ctx, *deleted.StudentID(), fmt.Sprintf("Занятие %s отменено преподавателем", deleted.Range), nil)
	}
	return nil
}

// CreateBlockedPeriod закрывает время для занятий
func (s *SlotService) CreateBlockedPeriod(ctx context.Context, period *model.BlockedPeriod) error {
	if err := period.Range.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateBlockedPeriod(ctx, period); err != nil {
		return fmt.Errorf("create blocked period: %w", err)
	}

	s.logger.Info("Blocked period created",
		zap.Int64("blocked_period_id", period.ID),
		zap.Int64("owner_id", period.OwnerID),
		zap.Stringer("range", period.Range),
	)
	return nil
}

// ExpireAssignments возвращает в available все назначения с истёкшим сроком.
// Повторный запуск безопасен: уже обработанные слоты пропускаются.
func (s *SlotService) ExpireAssignments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	slots, err := s.store.GetExpiredAssignments(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("get expired assignments: %w", err)
	}

	expired := 0
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.apply(ctx, slot.ID, model.Transition{Event: model.EventExpire})
		if err != nil {
			// Студент успел подтвердить или отказаться
			if model.KindOf(err) == model.KindInvalidTransition {
				continue
			}
			s.logger.Error("Failed to expire assignment", zap.Int64("slot_id", slot.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *SlotService) apply(ctx context.Context, slotID int64, t model.Transition) (*model.Slot, error) {
	t.At = s.clock.Now()

	res, err := s.store.ApplyTransition(ctx, slotID, t)
	if err != nil {
		return nil, fmt.Errorf("apply %s to slot %d: %w", t.Event, slotID, err)
	}

	s.logger.Info("Slot transition applied",
		zap.Int64("slot_id", slotID),
		zap.String("event", string(t.Event)),
		zap.String("from", string(res.Previous)),
		zap.String("to", string(res.Slot.Status)),
	)

	switch {
	case res.StudentID == nil:
	case t.Event == model.EventExpire:
		s.notifyStudent(ctx, *res.StudentID, fmt.Sprintf("Время на подтверждение занятия %s истекло", res.Slot.Range), nil)
	case t.Event == model.EventAssign:
		s.notifyStudent(ctx, *res.StudentID, fmt.Sprintf("Вам предложено занятие %s", res.Slot.Range), res.Slot.AssignmentExpiry)
	}

	if res.Released() && s.releases != nil {
		if err := s.releases.SlotReleased(ctx, res.Slot); err != nil {
			s.logger.Error("Failed to process slot release",
				zap.Int64("slot_id", slotID),
				zap.Error(err),
			)
		}
	}

	return res.Slot, nil
}

// notifyStudent доставка не влияет на результат операции
func (s *SlotService) notifyStudent(ctx context.Context, studentID int64, message string, expiresAt *time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, studentID, message, expiresAt); err != nil {
		s.logger.Warn("Failed to notify student",
			zap.Int64("student_id", studentID),
			zap.Error(err),
		)
	}
}
