package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SlotStore хранилище расписания в PostgreSQL поверх репозиториев.
// Операции чтения-изменения-записи выполняются в одной транзакции.
type SlotStore struct {
	pool      *pgxpool.Pool
	slots     *SlotRepository
	templates *RecurringTemplateRepository
	blocked   *BlockedPeriodRepository
	bookings  *BookingRepository
}

func NewSlotStore(pool *pgxpool.Pool) *SlotStore {
	return &SlotStore{
		pool:      pool,
		slots:     NewSlotRepository(pool),
		templates: NewRecurringTemplateRepository(pool),
		blocked:   NewBlockedPeriodRepository(pool),
		bookings:  NewBookingRepository(pool),
	}
}

func (s *SlotStore) GetSlots(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.Slot, error) {
	return s.slots.GetByOwner(ctx, ownerID, from, to)
}

func (s *SlotStore) GetSlot(ctx context.Context, id int64) (*model.Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *SlotStore) GetTemplates(ctx context.Context, ownerID int64) ([]*model.RecurringTemplate, error) {
	return s.templates.GetByOwnerID(ctx, ownerID)
}

func (s *SlotStore) GetTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *SlotStore) GetActiveTemplates(ctx context.Context) ([]*model.RecurringTemplate, error) {
	return s.templates.GetAllActive(ctx)
}

func (s *SlotStore) GetBlockedPeriods(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.BlockedPeriod, error) {
	return s.blocked.GetByOwner(ctx, ownerID, from, to)
}

func (s *SlotStore) GetSlotsByTemplate(ctx context.Context, templateID int64, from model.CalendarDate) ([]*model.Slot, error) {
	return s.slots.GetByTemplate(ctx, templateID, from)
}

func (s *SlotStore) GetExpiredAssignments(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	return s.slots.GetExpiredAssignments(ctx, now)
}

func (s *SlotStore) GetBookings(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	return s.bookings.GetBySlotID(ctx, slotID)
}

func (s *SlotStore) CreateBlockedPeriod(ctx context.Context, period *model.BlockedPeriod) error {
	return s.blocked.Create(ctx, period)
}

func (s *SlotStore) DeleteTemplate(ctx context.Context, id int64) error {
	return s.templates.Delete(ctx, id)
}

func (s *SlotStore) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	return s.templates.SetActive(ctx, id, active)
}

func (s *SlotStore) UnlinkSlots(ctx context.Context, ids []int64) error {
	return s.slots.Unlink(ctx, ids)
}

// ApplyTransition блокирует строку слота, применяет переход и ведёт записи бронирований
func (s *SlotStore) ApplyTransition(ctx context.Context, id int64, t model.Transition) (model.TransitionResult, error) {
	var res model.TransitionResult
	err := base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		slots := NewSlotRepository(tx)
		bookings := NewBookingRepository(tx)

		slot, err := slots.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if slot == nil {
			return &model.NotFoundError{Entity: "slot", ID: id}
		}

		res, err = slot.Apply(t)
		if err != nil {
			return err
		}
		if err := slots.Save(ctx, res.Slot); err != nil {
			return err
		}

		switch res.Booking {
		case model.BookingEffectCreate:
			return bookings.Create(ctx, &model.Booking{
				SlotID:    id,
				OwnerID:   slot.OwnerID,
				StudentID: *res.StudentID,
				Status:    model.BookingStatusConfirmed,
			})
		case model.BookingEffectCancel:
			return bookings.CloseActive(ctx, id, model.BookingStatusCanceled)
		case model.BookingEffectComplete:
			return bookings.CloseActive(ctx, id, model.BookingStatusCompleted)
		}
		return nil
	})
	return res, err
}

// CreateSlots сохраняет слоты в одной транзакции. При exclusive пересечения
// перепроверяются под advisory-блокировкой владельца.
func (s *SlotStore) CreateSlots(ctx context.Context, slots []*model.Slot, exclusive bool) ([]*model.Slot, error) {
	err := base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewSlotRepository(tx)

		if exclusive {
			if err := lockOwners(ctx, tx, slots); err != nil {
				return err
			}
		}

		for i, slot := range slots {
			if exclusive {
				other, err := repo.FindOverlapping(ctx, slot.OwnerID, slot.Range, 0)
				if err != nil {
					return err
				}
				if other == nil {
					for _, prev := range slots[:i] {
						if prev.OwnerID == slot.OwnerID && model.Overlaps(prev.Range, slot.Range) {
							other = prev
							break
						}
					}
				}
				if other != nil {
					return &model.SlotUnavailableError{
						SlotID: other.ID,
						Range:  slot.Range,
						Reason: "overlaps slot " + other.Range.String(),
					}
				}
			}
			if err := repo.Create(ctx, slot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// DeleteSlot удаляет слот с проверкой зависимых бронирований
func (s *SlotStore) DeleteSlot(ctx context.Context, id int64, force bool) (*model.Slot, error) {
	var deleted *model.Slot
	err := base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		slots := NewSlotRepository(tx)

		slot, err := slots.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if slot == nil {
			return &model.NotFoundError{Entity: "slot", ID: id}
		}

		dependents, err := NewBookingRepository(tx).CountBySlotID(ctx, id)
		if err != nil {
			return err
		}
		if err := slot.CheckDelete(force, dependents); err != nil {
			return err
		}

		deleted = slot
		return slots.Delete(ctx, id)
	})
	return deleted, err
}

// MoveSlot переносит слот, при exclusive с перепроверкой пересечений
func (s *SlotStore) MoveSlot(ctx context.Context, id int64, rng model.TimeRange, exclusive bool) (*model.Slot, error) {
	var moved *model.Slot
	err := base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		slots := NewSlotRepository(tx)

		slot, err := slots.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if slot == nil {
			return &model.NotFoundError{Entity: "slot", ID: id}
		}

		if exclusive {
			if err := base.LockOwner(ctx, tx, slot.OwnerID); err != nil {
				return err
			}
			other, err := slots.FindOverlapping(ctx, slot.OwnerID, rng, id)
			if err != nil {
				return err
			}
			if other != nil {
				return &model.SlotUnavailableError{SlotID: other.ID, Range: rng, Reason: "overlaps slot " + other.Range.String()}
			}
		}

		if err := slots.Move(ctx, id, rng); err != nil {
			return err
		}
		moved, err = slots.GetByID(ctx, id)
		return err
	})
	return moved, err
}

// CreateTemplates сохраняет шаблоны одной транзакцией
func (s *SlotStore) CreateTemplates(ctx context.Context, templates []*model.RecurringTemplate) error {
	return base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRecurringTemplateRepository(tx)
		for _, t := range templates {
			if err := repo.Create(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockOwners блокирует владельцев в порядке возрастания id, чтобы не было взаимоблокировок
func lockOwners(ctx context.Context, tx pgx.Tx, slots []*model.Slot) error {
	var owners []int64
	for _, slot := range slots {
		if !slices.Contains(owners, slot.OwnerID) {
			owners = append(owners, slot.OwnerID)
		}
	}
	slices.Sort(owners)

	for _, owner := range owners {
		if err := base.LockOwner(ctx, tx, owner); err != nil {
			return fmt.Errorf("lock owner %d: %w", owner, err)
		}
	}
	return nil
}
