package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// SlotStore хранилище слотов, шаблонов и заблокированных периодов.
// Get-методы возвращают nil, nil, если запись не найдена.
type SlotStore interface {
	// GetSlots слоты владельца с датой в диапазоне [from, to] включительно
	GetSlots(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.Slot, error)
	GetSlot(ctx context.Context, id int64) (*model.Slot, error)
	GetTemplates(ctx context.Context, ownerID int64) ([]*model.RecurringTemplate, error)
	GetTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error)
	GetActiveTemplates(ctx context.Context) ([]*model.RecurringTemplate, error)
	// GetBlockedPeriods датированные периоды в диапазоне плюс все еженедельные
	GetBlockedPeriods(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.BlockedPeriod, error)

	// ApplyTransition атомарно читает слот, применяет переход из таблицы состояний и сохраняет результат
	ApplyTransition(ctx context.Context, id int64, t model.Transition) (model.TransitionResult, error)
	// CreateSlots сохраняет слоты одной операцией. При exclusive повторно проверяет
	// пересечения с уже сохранёнными слотами и возвращает SlotUnavailableError.
	CreateSlots(ctx context.Context, slots []*model.Slot, exclusive bool) ([]*model.Slot, error)
	// DeleteSlot удаляет слот и возвращает его последнее состояние
	DeleteSlot(ctx context.Context, id int64, force bool) (*model.Slot, error)
	MoveSlot(ctx context.Context, id int64, r model.TimeRange, exclusive bool) (*model.Slot, error)

	CreateTemplates(ctx context.Context, templates []*model.RecurringTemplate) error
	DeleteTemplate(ctx context.Context, id int64) error
	SetTemplateActive(ctx context.Context, id int64, active bool) error
	// GetSlotsByTemplate вхождения шаблона с датой не раньше from
	GetSlotsByTemplate(ctx context.Context, templateID int64, from model.CalendarDate) ([]*model.Slot, error)
	UnlinkSlots(ctx context.Context, ids []int64) error

	CreateBlockedPeriod(ctx context.Context, period *model.BlockedPeriod) error
	// GetBookings история бронирований слота
	GetBookings(ctx context.Context, slotID int64) ([]*model.Booking, error)
	// GetExpiredAssignments слоты в статусе assigned с истёкшим assignmentExpiry
	GetExpiredAssignments(ctx context.Context, now time.Time) ([]*model.Slot, error)
}

// WaitlistStore хранилище очереди ожидания. Все мутации атомарны в пределах записи или очереди.
type WaitlistStore interface {
	// GetEntries записи очереди по возрастанию priority. Пустой bucket - все очереди владельца,
	// пустой statuses - все статусы.
	GetEntries(ctx context.Context, ownerID int64, bucket model.Bucket, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error)
	GetEntry(ctx context.Context, id int64) (*model.WaitlistEntry, error)
	// Enqueue ставит запись в конец очереди. AlreadyQueuedError, если у того же студента
	// есть активная запись на пересекающееся окно этого владельца.
	Enqueue(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error)
	// Update атомарно применяет fn к записи и сохраняет её
	Update(ctx context.Context, id int64, fn func(*model.WaitlistEntry) error) (*model.WaitlistEntry, error)
	// Remove удаляет активную запись, завершённые записи не трогает
	Remove(ctx context.Context, id int64) (*model.WaitlistEntry, error)
	// SwapAdjacent меняет priority с соседней активной записью
	SwapAdjacent(ctx context.Context, id int64, towardFront bool) (*model.WaitlistEntry, error)
	// NotifyHead переводит первую ожидающую запись очереди в notified,
	// если в очереди нет другой записи в статусе notified. Возвращает nil, если уведомлять некого.
	NotifyHead(ctx context.Context, ownerID int64, bucket model.Bucket, now time.Time, ttl time.Duration) (*model.WaitlistEntry, error)
	// Expire переводит запись в expired, если её срок истёк. false - запись уже обработана.
	Expire(ctx context.Context, id int64, now time.Time) (*model.WaitlistEntry, bool, error)
	GetExpired(ctx context.Context, now time.Time) ([]*model.WaitlistEntry, error)
	// Renumber атомарно уплотняет priority очереди до 0..n-1 с сохранением порядка
	Renumber(ctx context.Context, ownerID int64, bucket model.Bucket) error
}

// Notifier доставка уведомлений студентам
type Notifier interface {
	Notify(ctx context.Context, requesterID int64, message string, expiresAt *time.Time) error
}

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock часы на основе time.Now
func SystemClock() Clock { return systemClock{} }

// SlotReleaseHandler реагирует на освобождение ранее занятого слота
type SlotReleaseHandler interface {
	SlotReleased(ctx context.Context, slot *model.Slot) error
}
