package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"go.uber.org/zap"
)

// DetectOptions исключения для проверки (например, сам перемещаемый слот)
type DetectOptions struct {
	ExcludeSlotIDs     []int64 `json:"excludeSlotIds,omitempty"`
	ExcludeTemplateIDs []int64 `json:"excludeTemplateIds,omitempty"`
}

// ConflictDetector ищет пересечения предложенных диапазонов с расписанием владельца
type ConflictDetector struct {
	store        SlotStore
	clock        Clock
	horizonWeeks int
	logger       *zap.Logger
}

func NewConflictDetector(store SlotStore, clock Clock, horizonWeeks int, logger *zap.Logger) *ConflictDetector {
	if horizonWeeks <= 0 {
		horizonWeeks = 4
	}
	return &ConflictDetector{
		store:        store,
		clock:        clock,
		horizonWeeks: horizonWeeks,
		logger:       logger,
	}
}

// Detect возвращает отчёт по каждому диапазону. Наличие конфликтов не ошибка.
func (d *ConflictDetector) Detect(ctx context.Context, ownerID int64, ranges []model.TimeRange, opts DetectOptions) ([]model.ConflictReport, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	snap, err := d.Snapshot(ctx, ownerID, ranges, 0)
	if err != nil {
		return nil, err
	}

	reports := make([]model.ConflictReport, 0, len(ranges))
	total := 0
	for _, r := range ranges {
		report := snap.Detect(r, opts)
		total += report.Total()
		reports = append(reports, report)
	}

	d.logger.Debug("Conflicts detected",
		zap.Int64("owner_id", ownerID),
		zap.Int("ranges", len(ranges)),
		zap.Int("conflicts", total),
	)

	return reports, nil
}

// Snapshot загружает расписание владельца одним набором запросов.
// Окно покрывает все датированные диапазоны (расширенные на padDays),
// а для еженедельных - горизонт от сегодняшнего дня.
func (d *ConflictDetector) Snapshot(ctx context.Context, ownerID int64, ranges []model.TimeRange, padDays int) (*Snapshot, error) {
	from, to, ok := d.window(ranges, padDays)

	templates, err := d.store.GetTemplates(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get templates: %w", err)
	}

	var slots []*model.Slot
	var blocked []*model.BlockedPeriod
	if ok {
		slots, err = d.store.GetSlots(ctx, ownerID, from, to)
		if err != nil {
			return nil, fmt.Errorf("get slots: %w", err)
		}
		blocked, err = d.store.GetBlockedPeriods(ctx, ownerID, from, to)
		if err != nil {
			return nil, fmt.Errorf("get blocked periods: %w", err)
		}
	}

	return NewSnapshot(templates, slots, blocked), nil
}

func (d *ConflictDetector) window(ranges []model.TimeRange, padDays int) (from, to model.CalendarDate, ok bool) {
	expand := func(date model.CalendarDate) {
		if !ok {
			from, to, ok = date, date, true
			return
		}
		if date.Before(from) {
			from = date
		}
		if date.After(to) {
			to = date
		}
	}

	for _, r := range ranges {
		if r.Date != nil {
			expand(r.Date.AddDays(-padDays))
			expand(r.Date.AddDays(padDays))
			continue
		}
		today := model.DateOf(d.clock.Now())
		expand(today)
		expand(today.AddDays(7*d.horizonWeeks - 1))
	}
	return from, to, ok
}

// Snapshot согласованный срез расписания, проиндексированный по дате и дню недели
type Snapshot struct {
	templatesByDay map[time.Weekday][]*model.RecurringTemplate
	slotsByDate    map[model.CalendarDate][]*model.Slot
	slotsByDay     map[time.Weekday][]*model.Slot
	blockedByDay   map[time.Weekday][]*model.BlockedPeriod
}

func NewSnapshot(templates []*model.RecurringTemplate, slots []*model.Slot, blocked []*model.BlockedPeriod) *Snapshot {
	s := &Snapshot{
		templatesByDay: make(map[time.Weekday][]*model.RecurringTemplate),
		slotsByDate:    make(map[model.CalendarDate][]*model.Slot),
		slotsByDay:     make(map[time.Weekday][]*model.Slot),
		blockedByDay:   make(map[time.Weekday][]*model.BlockedPeriod),
	}
	for _, t := range templates {
		s.AddTemplate(t)
	}
	for _, slot := range slots {
		s.AddSlot(slot)
	}
	for _, b := range blocked {
		day := b.Range.Weekday()
		s.blockedByDay[day] = append(s.blockedByDay[day], b)
	}
	return s
}

// AddSlot добавляет слот, например результат предыдущего разрешения в том же вызове
func (s *Snapshot) AddSlot(slot *model.Slot) {
	if slot.Range.Date == nil {
		return
	}
	date := *slot.Range.Date
	s.slotsByDate[date] = append(s.slotsByDate[date], slot)
	s.slotsByDay[date.Weekday()] = append(s.slotsByDay[date.Weekday()], slot)
}

// ReplaceSlot убирает прежнюю позицию слота (после переноса) и добавляет текущую
func (s *Snapshot) ReplaceSlot(slot *model.Slot) {
	sameID := func(o *model.Slot) bool { return o.ID == slot.ID }
	for date, slots := range s.slotsByDate {
		s.slotsByDate[date] = slices.DeleteFunc(slots, sameID)
	}
	for day, slots := range s.slotsByDay {
		s.slotsByDay[day] = slices.DeleteFunc(slots, sameID)
	}
	s.AddSlot(slot)
}

func (s *Snapshot) AddTemplate(t *model.RecurringTemplate) {
	s.templatesByDay[t.DayOfWeek] = append(s.templatesByDay[t.DayOfWeek], t)
}

// Detect проверяет один диапазон по срезу
func (s *Snapshot) Detect(r model.TimeRange, opts DetectOptions) model.ConflictReport {
	report := model.NewConflictReport(r)
	day := r.Weekday()

	for _, t := range s.templatesByDay[day] {
		if !t.IsActive || slices.Contains(opts.ExcludeTemplateIDs, t.ID) {
			continue
		}
		if model.Overlaps(t.Range(), r) {
			report.TimeSlotConflicts = append(report.TimeSlotConflicts, *t)
		}
	}

	candidates := s.slotsByDay[day]
	if r.Date != nil {
		candidates = s.slotsByDate[*r.Date]
	}
	for _, slot := range candidates {
		if !slot.BlocksTime() || slices.Contains(opts.ExcludeSlotIDs, slot.ID) {
			continue
		}
		if model.Overlaps(slot.Range, r) {
			report.ScheduleSlotConflicts = append(report.ScheduleSlotConflicts, *slot)
		}
	}

	for _, b := range s.blockedByDay[day] {
		if model.Overlaps(b.Range, r) {
			report.BlockedSlotConflicts = append(report.BlockedSlotConflicts, *b)
		}
	}

	return report
}
