package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecurringService разворачивает шаблоны регулярных занятий в конкретные слоты
type RecurringService struct {
	store    SlotStore
	detector *ConflictDetector
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
}

func NewRecurringService(
	store SlotStore,
	detector *ConflictDetector,
	notifier Notifier,
	clock Clock,
	logger *zap.Logger,
) *RecurringService {
	return &RecurringService{
		store:    store,
		detector: detector,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// TemplateSpec шаблон в запросе развёртки. ID != 0 - уже сохранённый шаблон.
type TemplateSpec struct {
	ID        int64
	DayOfWeek time.Weekday
	StartTime model.WallClock
	EndTime   model.WallClock
	Subject   string
}

// ExpandRequest запрос на развёртку серии
type ExpandRequest struct {
	OwnerID           int64
	Templates         []TemplateSpec
	Weeks             int
	StartDate         model.CalendarDate // пустая - сегодня
	CreateTemplates   bool
	CreateOccurrences bool
	PreviewOnly       bool
	Override          bool // пропустить конфликтующие вхождения вместо ошибки
}

// TemplateOccurrences даты вхождений одного шаблона
type TemplateOccurrences struct {
	TemplateIndex int                  `json:"templateIndex"`
	TemplateID    int64                `json:"templateId,omitempty"`
	Dates         []model.CalendarDate `json:"dates"`
	Existing      []model.CalendarDate `json:"existing,omitempty"`
}

// ExpandResult итог предпросмотра или фиксации
type ExpandResult struct {
	Preview            bool                       `json:"preview"`
	SlotsToCreate      int                        `json:"slotsToCreate"`
	TotalScheduleSlots int                        `json:"totalScheduleSlots"`
	Conflicts          []model.OccurrenceConflict `json:"conflicts"`
	Occurrences        []TemplateOccurrences      `json:"occurrences"`
	GroupID            *uuid.UUID                 `json:"groupId,omitempty"`
	Templates          []*model.RecurringTemplate `json:"templates,omitempty"`
	CreatedSlots       []*model.Slot              `json:"createdSlots,omitempty"`
}

// DeleteSeriesResult итог удаления серии
type DeleteSeriesResult struct {
	TemplateID     int64   `json:"templateId"`
	DeletedSlotIDs []int64 `json:"deletedSlotIds"`
	KeptSlotIDs    []int64 `json:"keptSlotIds"`
}

type plannedOccurrence struct {
	templateIndex int
	rng           model.TimeRange
}

// Expand строит вхождения шаблонов на weeks недель и проверяет их на конфликты.
// В режиме предпросмотра ничего не пишет.
func (s *RecurringService) Expand(ctx context.Context, req ExpandRequest) (*ExpandResult, error) {
	if req.Weeks < 1 {
		return nil, &model.InvalidRangeError{Reason: "weeks must be at least 1"}
	}
	if len(req.Templates) == 0 {
		return nil, &model.InvalidRangeError{Reason: "at least one template is required"}
	}
	if req.StartDate.IsZero() {
		req.StartDate = model.DateOf(s.clock.Now())
	}

	templates, err := s.resolveTemplates(ctx, req)
	if err != nil {
		return nil, err
	}

	// Шаблоны одной пачки не должны пересекаться между собой
	for i := range templates {
		for j := i + 1; j < len(templates); j++ {
			if model.Overlaps(templates[i].Range(), templates[j].Range()) {
				return nil, &model.InvalidRangeError{
					Range:  templates[j].Range(),
					Reason: fmt.Sprintf("templates %d and %d overlap each other", i, j),
				}
			}
		}
	}

	result := &ExpandResult{
		Preview:     req.PreviewOnly,
		Conflicts:   []model.OccurrenceConflict{},
		Occurrences: make([]TemplateOccurrences, 0, len(templates)),
	}

	var planned []plannedOccurrence
	var ranges []model.TimeRange
	var excludeTemplates []int64
	for i, t := range templates {
		occ := TemplateOccurrences{TemplateIndex: i, TemplateID: t.ID, Dates: t.OccurrenceDates(req.StartDate, req.Weeks)}

		existing := map[model.CalendarDate]bool{}
		if t.ID != 0 {
			excludeTemplates = append(excludeTemplates, t.ID)
			slots, err := s.store.GetSlotsByTemplate(ctx, t.ID, req.StartDate)
			if err != nil {
				return nil, fmt.Errorf("get slots by template: %w", err)
			}
			for _, slot := range slots {
				existing[slot.Date()] = true
			}
		}

		for _, date := range occ.Dates {
			if existing[date] {
				occ.Existing = append(occ.Existing, date)
				continue
			}
			r := t.OccurrenceOn(date)
			planned = append(planned, plannedOccurrence{templateIndex: i, rng: r})
			ranges = append(ranges, r)
		}
		result.Occurrences = append(result.Occurrences, occ)
		result.TotalScheduleSlots += len(occ.Dates)
	}

	var toCreate []plannedOccurrence
	if len(ranges) > 0 {
		snap, err := s.detector.Snapshot(ctx, req.OwnerID, ranges, 0)
		if err != nil {
			return nil, fmt.Errorf("load schedule snapshot: %w", err)
		}
		opts := DetectOptions{ExcludeTemplateIDs: excludeTemplates}
		for _, p := range planned {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report := snap.Detect(p.rng, opts)
			if report.HasConflicts() {
				result.Conflicts = append(result.Conflicts, model.OccurrenceConflict{
					TemplateIndex: p.templateIndex,
					Date:          *p.rng.Date,
					Report:        report,
				})
				continue
			}
			toCreate = append(toCreate, p)
		}
	}
	result.SlotsToCreate = len(toCreate)

	if req.PreviewOnly {
		return result, nil
	}

	if len(result.Conflicts) > 0 && !req.Override {
		return nil, &model.RecurringConflictsError{Conflicts: result.Conflicts}
	}

	if err := s.commit(ctx, req, templates, toCreate, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RecurringService) resolveTemplates(ctx context.Context, req ExpandRequest) ([]*model.RecurringTemplate, error) {
	templates := make([]*model.RecurringTemplate, 0, len(req.Templates))
	for i, tmpl := range req.Templates {
		if tmpl.ID != 0 {
			t, err := s.store.GetTemplate(ctx, tmpl.ID)
			if err != nil {
				return nil, fmt.Errorf("get template: %w", err)
			}
			if t == nil || t.OwnerID != req.OwnerID {
				return nil, &model.NotFoundError{Entity: "template", ID: tmpl.ID}
			}
			templates = append(templates, t)
			continue
		}

		r := model.WeeklyRange(tmpl.DayOfWeek, tmpl.StartTime, tmpl.EndTime)
		if err := r.Validate(); err != nil {
			var rangeErr *model.InvalidRangeError
			if errors.As(err, &rangeErr) {
				rangeErr.Reason = fmt.Sprintf("template %d: %s", i, rangeErr.Reason)
			}
			return nil, err
		}
		templates = append(templates, &model.RecurringTemplate{
			OwnerID:   req.OwnerID,
			DayOfWeek: tmpl.DayOfWeek,
			StartTime: tmpl.StartTime,
			EndTime:   tmpl.EndTime,
			Subject:   tmpl.Subject,
			IsActive:  true,
		})
	}
	return templates, nil
}

func (s *RecurringService) commit(ctx context.Context, req ExpandRequest, templates []*model.RecurringTemplate, toCreate []plannedOccurrence, result *ExpandResult) error {
	if req.CreateTemplates {
		var fresh []*model.RecurringTemplate
		groupID := uuid.New()
		for _, t := range templates {
			if t.ID == 0 {
				t.GroupID = groupID
				fresh = append(fresh, t)
			}
		}
		if len(fresh) > 0 {
			if err := s.store.CreateTemplates(ctx, fresh); err != nil {
				return fmt.Errorf("create templates: %w", err)
			}
			result.GroupID = &groupID
			result.Templates = fresh

			s.logger.Info("Recurring template group created",
				zap.String("group_id", groupID.String()),
				zap.Int64("owner_id", req.OwnerID),
				zap.Int("templates", len(fresh)),
			)
		}
	}

	if !req.CreateOccurrences || len(toCreate) == 0 {
		return nil
	}

	slots := make([]*model.Slot, 0, len(toCreate))
	for _, p := range toCreate {
		t := templates[p.templateIndex]
		slot, err := model.NewSlot(req.OwnerID, p.rng, t.Subject, model.SlotStatusAvailable)
		if err != nil {
			return err
		}
		if t.ID != 0 {
			id := t.ID
			slot.TemplateID = &id
		}
		slots = append(slots, slot)
	}

	created, err := s.store.CreateSlots(ctx, slots, true)
	if err != nil {
		return fmt.Errorf("create occurrences: %w", err)
	}
	result.CreatedSlots = created

	s.logger.Info("Recurring occurrences created",
		zap.Int64("owner_id", req.OwnerID),
		zap.Int("created", len(created)),
		zap.Int("skipped_conflicts", len(result.Conflicts)),
	)
	return nil
}

// ListTemplates шаблоны владельца
func (s *RecurringService) ListTemplates(ctx context.Context, ownerID int64) ([]*model.RecurringTemplate, error) {
	return s.store.GetTemplates(ctx, ownerID)
}

// SetTemplateActive включает или выключает шаблон. Выключенный шаблон не конфликтует и не продлевается.
func (s *RecurringService) SetTemplateActive(ctx context.Context, templateID int64, active bool) (*model.RecurringTemplate, error) {
	template, err := s.getTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetTemplateActive(ctx, templateID, active); err != nil {
		return nil, fmt.Errorf("set template active: %w", err)
	}
	template.IsActive = active

	s.logger.Info("Recurring template toggled",
		zap.Int64("template_id", templateID),
		zap.Bool("is_active", active),
	)
	return template, nil
}

// DeleteSeries удаляет шаблон и его будущие незанятые вхождения.
// Занятые (assigned, booked) вхождения без force остаются и отвязываются от шаблона,
// с force удаляются, а студенты получают уведомление.
func (s *RecurringService) DeleteSeries(ctx context.Context, templateID int64, force bool) (*DeleteSeriesResult, error) {
	if _, err := s.getTemplate(ctx, templateID); err != nil {
		return nil, err
	}

	slots, err := s.store.GetSlotsByTemplate(ctx, templateID, model.DateOf(s.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("get slots by template: %w", err)
	}

	result := &DeleteSeriesResult{TemplateID: templateID, DeletedSlotIDs: []int64{}, KeptSlotIDs: []int64{}}
	for _, slot := range slots {
		switch {
		case slot.HasStudent() && !force:
			result.KeptSlotIDs = append(result.KeptSlotIDs, slot.ID)
			continue
		case slot.Status == model.SlotStatusCompleted, slot.Status == model.SlotStatusCancelled:
			result.KeptSlotIDs = append(result.KeptSlotIDs, slot.ID)
			continue
		}

		deleted, err := s.store.DeleteSlot(ctx, slot.ID, slot.HasStudent())
		if err != nil {
			var depErr *model.HasDependentsError
			var transitionErr *model.InvalidTransitionError
			if errors.As(err, &depErr) || errors.As(err, &transitionErr) {
				// Слот успел измениться или у него есть история бронирований
				result.KeptSlotIDs = append(result.KeptSlotIDs, slot.ID)
				continue
			}
			return nil, fmt.Errorf("delete occurrence %d: %w", slot.ID, err)
		}
		result.DeletedSlotIDs = append(result.DeletedSlotIDs, slot.ID)

		if deleted.HasStudent() && s.notifier != nil {
			msg := fmt.Sprintf("Занятие %s отменено: серия удалена преподавателем", deleted.Range)
			if err := s.notifier.Notify(ctx, *deleted.StudentID(), msg, nil); err != nil {
				s.logger.Warn("Failed to notify student",
					zap.Int64("slot_id", deleted.ID),
					zap.Error(err),
				)
			}
		}
	}

	if len(result.KeptSlotIDs) > 0 {
		if err := s.store.UnlinkSlots(ctx, result.KeptSlotIDs); err != nil {
			return nil, fmt.Errorf("unlink slots: %w", err)
		}
	}

	if err := s.store.DeleteTemplate(ctx, templateID); err != nil {
		return nil, fmt.Errorf("delete template: %w", err)
	}

	s.logger.Info("Recurring series deleted",
		zap.Int64("template_id", templateID),
		zap.Int("deleted_slots", len(result.DeletedSlotIDs)),
		zap.Int("kept_slots", len(result.KeptSlotIDs)),
		zap.Bool("force", force),
	)

	return result, nil
}

// ExtendActiveTemplates досоздаёт недостающие вхождения всех активных шаблонов на weeks недель вперёд.
// Конфликтующие даты пропускаются.
func (s *RecurringService) ExtendActiveTemplates(ctx context.Context, weeks int) (int, error) {
	templates, err := s.store.GetActiveTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("get active templates: %w", err)
	}

	total := 0
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := s.Expand(ctx, ExpandRequest{
			OwnerID:           t.OwnerID,
			Templates:         []TemplateSpec{{ID: t.ID}},
			Weeks:             weeks,
			CreateOccurrences: true,
			Override:          true,
		})
		if err != nil {
			s.logger.Error("Failed to extend recurring template",
				zap.Int64("template_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		total += len(res.CreatedSlots)
	}

	s.logger.Info("Extended recurring templates",
		zap.Int("templates", len(templates)),
		zap.Int("slots_created", total),
	)

	return total, nil
}

func (s *RecurringService) getTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error) {
	template, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if template == nil {
		return nil, &model.NotFoundError{Entity: "template", ID: id}
	}
	return template, nil
}
