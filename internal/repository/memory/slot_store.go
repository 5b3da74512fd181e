package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// SlotStore хранилище слотов в памяти. Все операции под одним мьютексом,
// поэтому каждая мутация атомарна.
type SlotStore struct {
	mu        sync.RWMutex
	slots     map[int64]*model.Slot
	templates map[int64]*model.RecurringTemplate
	blocked   map[int64]*model.BlockedPeriod
	bookings  map[int64]*model.Booking
	nextID    int64
	now       func() time.Time
}

// NewSlotStore создаёт пустое хранилище
func NewSlotStore() *SlotStore {
	return &SlotStore{
		slots:     make(map[int64]*model.Slot),
		templates: make(map[int64]*model.RecurringTemplate),
		blocked:   make(map[int64]*model.BlockedPeriod),
		bookings:  make(map[int64]*model.Booking),
		now:       time.Now,
	}
}

func (s *SlotStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *SlotStore) GetSlots(_ context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Slot
	for _, slot := range s.slots {
		date := slot.Date()
		if slot.OwnerID == ownerID && !date.Before(from) && !date.After(to) {
			out = append(out, slot.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *SlotStore) GetSlot(_ context.Context, id int64) (*model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, nil
	}
	return slot.Clone(), nil
}

func (s *SlotStore) GetTemplates(_ context.Context, ownerID int64) ([]*model.RecurringTemplate, error) {
	return s.templatesWhere(func(t *model.RecurringTemplate) bool { return t.OwnerID == ownerID }), nil
}

func (s *SlotStore) GetActiveTemplates(_ context.Context) ([]*model.RecurringTemplate, error) {
	return s.templatesWhere(func(t *model.RecurringTemplate) bool { return t.IsActive }), nil
}

func (s *SlotStore) templatesWhere(match func(*model.RecurringTemplate) bool) []*model.RecurringTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.RecurringTemplate
	for _, t := range s.templates {
		if match(t) {
			c := *t
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.RecurringTemplate) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *SlotStore) GetTemplate(_ context.Context, id int64) (*model.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (s *SlotStore) GetBlockedPeriods(_ context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.BlockedPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.BlockedPeriod
	for _, b := range s.blocked {
		if b.OwnerID != ownerID {
			continue
		}
		if d := b.Range.Date; d != nil && (d.Before(from) || d.After(to)) {
			continue
		}
		c := *b
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *model.BlockedPeriod) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *SlotStore) ApplyTransition(_ context.Context, id int64, t model.Transition) (model.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return model.TransitionResult{}, &model.NotFoundError{Entity: "slot", ID: id}
	}

	res, err := slot.Apply(t)
	if err != nil {
		return model.TransitionResult{}, err
	}

	s.applyBookingEffect(res)
	s.slots[id] = res.Slot
	res.Slot = res.Slot.Clone()
	return res, nil
}

func (s *SlotStore) applyBookingEffect(res model.TransitionResult) {
	now := res.Slot.UpdatedAt
	switch res.Booking {
	case model.BookingEffectCreate:
		b := &model.Booking{
			ID:        s.id(),
			SlotID:    res.Slot.ID,
			OwnerID:   res.Slot.OwnerID,
			StudentID: *res.StudentID,
			Status:    model.BookingStatusConfirmed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.bookings[b.ID] = b
	case model.BookingEffectCancel, model.BookingEffectComplete:
		status := model.BookingStatusCanceled
		if res.Booking == model.BookingEffectComplete {
			status = model.BookingStatusCompleted
		}
		for _, b := range s.bookings {
			if b.SlotID == res.Slot.ID && b.Status == model.BookingStatusConfirmed {
				b.Status = status
				b.UpdatedAt = now
			}
		}
	}
}

func (s *SlotStore) CreateSlots(_ context.Context, slots []*model.Slot, exclusive bool) ([]*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exclusive {
		for i, slot := range slots {
			if other := s.overlapping(slot, 0); other != nil {
				return nil, slotTaken(slot, other)
			}
			for _, prev := range slots[:i] {
				if prev.OwnerID == slot.OwnerID && model.Overlaps(prev.Range, slot.Range) {
					return nil, slotTaken(slot, prev)
				}
			}
		}
	}

	now := s.now()
	out := make([]*model.Slot, 0, len(slots))
	for _, slot := range slots {
		slot.ID = s.id()
		slot.CreatedAt = now
		slot.UpdatedAt = now
		s.slots[slot.ID] = slot.Clone()
		out = append(out, slot.Clone())
	}
	return out, nil
}

func (s *SlotStore) DeleteSlot(_ context.Context, id int64, force bool) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "slot", ID: id}
	}
	if err := slot.CheckDelete(force, s.dependents(id)); err != nil {
		return nil, err
	}

	delete(s.slots, id)
	for bid, b := range s.bookings {
		if b.SlotID == id {
			delete(s.bookings, bid)
		}
	}
	return slot.Clone(), nil
}

func (s *SlotStore) MoveSlot(_ context.Context, id int64, r model.TimeRange, exclusive bool) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "slot", ID: id}
	}
	moved := slot.Clone()
	moved.Range = r
	moved.DurationMinutes, _ = r.DurationMinutes()
	moved.UpdatedAt = s.now()

	if exclusive {
		if other := s.overlapping(moved, id); other != nil {
			return nil, slotTaken(moved, other)
		}
	}

	s.slots[id] = moved
	return moved.Clone(), nil
}

func (s *SlotStore) CreateTemplates(_ context.Context, templates []*model.RecurringTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range templates {
		t.ID = s.id()
		t.CreatedAt = now
		t.UpdatedAt = now
		c := *t
		s.templates[t.ID] = &c
	}
	return nil
}

func (s *SlotStore) DeleteTemplate(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return &model.NotFoundError{Entity: "template", ID: id}
	}
	delete(s.templates, id)
	// как ON DELETE SET NULL в PostgreSQL
	for _, slot := range s.slots {
		if slot.TemplateID != nil && *slot.TemplateID == id {
			slot.TemplateID = nil
		}
	}
	return nil
}

func (s *SlotStore) SetTemplateActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return &model.NotFoundError{Entity: "template", ID: id}
	}
	t.IsActive = active
	t.UpdatedAt = s.now()
	return nil
}

func (s *SlotStore) GetSlotsByTemplate(_ context.Context, templateID int64, from model.CalendarDate) ([]*model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Slot
	for _, slot := range s.slots {
		if slot.TemplateID != nil && *slot.TemplateID == templateID && !slot.Date().Before(from) {
			out = append(out, slot.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

func (s *SlotStore) UnlinkSlots(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if slot, ok := s.slots[id]; ok {
			slot.TemplateID = nil
		}
	}
	return nil
}

func (s *SlotStore) CreateBlockedPeriod(_ context.Context, period *model.BlockedPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	period.ID = s.id()
	period.CreatedAt = s.now()
	c := *period
	s.blocked[period.ID] = &c
	return nil
}

func (s *SlotStore) GetBookings(_ context.Context, slotID int64) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Booking
	for _, b := range s.bookings {
		if b.SlotID == slotID {
			c := *b
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.Booking) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *SlotStore) GetExpiredAssignments(_ context.Context, now time.Time) ([]*model.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Slot
	for _, slot := range s.slots {
		if slot.Status == model.SlotStatusAssigned && slot.AssignmentExpiry != nil && !now.Before(*slot.AssignmentExpiry) {
			out = append(out, slot.Clone())
		}
	}
	sortSlots(out)
	return out, nil
}

// overlapping первый занимающий время слот владельца, пересекающийся с данным
func (s *SlotStore) overlapping(slot *model.Slot, skipID int64) *model.Slot {
	for _, other := range s.slots {
		if other.ID == skipID || other.OwnerID != slot.OwnerID || !other.BlocksTime() {
			continue
		}
		if model.Overlaps(other.Range, slot.Range) {
			return other
		}
	}
	return nil
}

func (s *SlotStore) dependents(slotID int64) int {
	n := 0
	for _, b := range s.bookings {
		if b.SlotID == slotID {
			n++
		}
	}
	return n
}

func slotTaken(slot, other *model.Slot) error {
	return &model.SlotUnavailableError{
		SlotID: other.ID,
		Range:  slot.Range,
		Reason: "overlaps slot " + other.Range.String(),
	}
}

func sortSlots(slots []*model.Slot) {
	slices.SortFunc(slots, func(a, b *model.Slot) int {
		if c := a.Date().Compare(b.Date()); c != 0 {
			return c
		}
		if a.Range.StartTime != b.Range.StartTime {
			return cmp.Compare(a.Range.StartTime, b.Range.StartTime)
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
