package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"go.uber.org/zap"
)

type Strategy string

const (
	StrategySuggest       Strategy = "suggest_alternatives"
	StrategyAutoAdjust    Strategy = "auto_adjust"
	StrategyForceOverride Strategy = "force_override"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const (
	defaultStepMinutes = 15
	defaultMaxDayShift = 3
	// MaxDayShiftLimit верхняя граница переноса на другой день
	MaxDayShiftLimit = 14
)

// Conflict предложенный диапазон, который пересекается с расписанием.
// SlotID задан, если речь о переносе существующего слота.
type Conflict struct {
	OwnerID            int64           `json:"ownerId"`
	ProposedRange      model.TimeRange `json:"proposedRange"`
	ConflictingSlotIDs []int64         `json:"conflictingSlotIds,omitempty"`
	SlotID             *int64          `json:"slotId,omitempty"`
	Subject            string          `json:"subject,omitempty"`
}

// Preferences ограничения поиска альтернатив
type Preferences struct {
	PreferredDirection   model.Direction `json:"preferredDirection" validate:"omitempty,oneof=earlier later any"`
	MaxAdjustmentMinutes int             `json:"maxAdjustmentMinutes" validate:"gte=0,lte=1440"`
	AllowDayChange       bool            `json:"allowDayChange"`
	StepMinutes          int             `json:"stepMinutes" validate:"gte=0,lte=1440"`
	MaxIterations        int             `json:"maxIterations" validate:"gte=0"` // 0 - ограничено только MaxAdjustmentMinutes
	MaxDayShift          int             `json:"maxDayShift" validate:"gte=0,lte=14"`
	MaxSuggestions       int             `json:"maxSuggestions" validate:"gte=0"` // 0 - все найденные альтернативы
}

func (p Preferences) withDefaults() Preferences {
	if p.PreferredDirection == "" {
		p.PreferredDirection = model.DirectionAny
	}
	if p.StepMinutes <= 0 {
		p.StepMinutes = defaultStepMinutes
	}
	if p.MaxDayShift <= 0 {
		p.MaxDayShift = defaultMaxDayShift
	}
	// Сдвиг больше суток всегда выходит за их пределы
	if p.MaxAdjustmentMinutes > model.MinutesPerDay {
		p.MaxAdjustmentMinutes = model.MinutesPerDay
	}
	return p
}

// Suggestion свободная альтернатива для конфликта
type Suggestion struct {
	ConflictIndex     int             `json:"conflictIndex"`
	Range             model.TimeRange `json:"range"`
	AdjustmentMinutes int             `json:"adjustmentMinutes"` // со знаком: минус - раньше
	DayOffset         int             `json:"dayOffset"`
	Confidence        Confidence      `json:"confidence"`
}

// AppliedResolution применённое изменение расписания
type AppliedResolution struct {
	ConflictIndex     int             `json:"conflictIndex"`
	SlotID            int64           `json:"slotId"`
	Range             model.TimeRange `json:"range"`
	AdjustmentMinutes int             `json:"adjustmentMinutes"`
	DayOffset         int             `json:"dayOffset"`
}

// ResolutionFailure конфликт, для которого не нашлось решения
type ResolutionFailure struct {
	ConflictIndex int             `json:"conflictIndex"`
	Kind          model.ErrorKind `json:"kind"`
	Message       string          `json:"message"`
	Fields        map[string]any  `json:"fields,omitempty"`
}

// ResolutionResult итог разрешения
type ResolutionResult struct {
	Strategy    Strategy            `json:"strategy"`
	Resolved    int                 `json:"resolved"`
	Applied     []AppliedResolution `json:"applied"`
	Suggestions []Suggestion        `json:"suggestions"`
	Failures    []ResolutionFailure `json:"failures"`
}

type candidate struct {
	rng        model.TimeRange
	adjustment int
	dayOffset  int
	steps      int
}

func (c candidate) confidence() Confidence {
	switch {
	case c.dayOffset != 0:
		return ConfidenceLow
	case c.steps <= 1:
		return ConfidenceHigh
	case c.steps <= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConflictResolver подбирает или применяет альтернативные диапазоны
type ConflictResolver struct {
	store    SlotStore
	detector *ConflictDetector
	logger   *zap.Logger
}

func NewConflictResolver(store SlotStore, detector *ConflictDetector, logger *zap.Logger) *ConflictResolver {
	return &ConflictResolver{
		store:    store,
		detector: detector,
		logger:   logger,
	}
}

// Resolve обрабатывает конфликты выбранной стратегией
func (r *ConflictResolver) Resolve(ctx context.Context, conflicts []Conflict, strategy Strategy, prefs Preferences) (*ResolutionResult, error) {
	prefs = prefs.withDefaults()
	if prefs.MaxAdjustmentMinutes < 0 {
		return nil, &model.InvalidRangeError{Reason: "maxAdjustmentMinutes must be non-negative"}
	}
	if prefs.MaxDayShift > MaxDayShiftLimit {
		return nil, &model.InvalidRangeError{Reason: fmt.Sprintf("maxDayShift must not exceed %d", MaxDayShiftLimit)}
	}
	switch prefs.PreferredDirection {
	case model.DirectionEarlier, model.DirectionLater, model.DirectionAny:
	default:
		return nil, &model.InvalidRangeError{Reason: fmt.Sprintf("unknown direction %q", prefs.PreferredDirection)}
	}
	switch strategy {
	case StrategySuggest, StrategyAutoAdjust, StrategyForceOverride:
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	for _, c := range conflicts {
		if err := c.ProposedRange.Validate(); err != nil {
			return nil, err
		}
	}

	result := &ResolutionResult{
		Strategy:    strategy,
		Applied:     []AppliedResolution{},
		Suggestions: []Suggestion{},
		Failures:    []ResolutionFailure{},
	}

	if strategy == StrategyForceOverride {
		for i, c := range conflicts {
			applied, err := r.apply(ctx, c, c.ProposedRange, false)
			if err != nil {
				return result, fmt.Errorf("force override conflict %d: %w", i, err)
			}
			result.Applied = append(result.Applied, AppliedResolution{ConflictIndex: i, SlotID: applied.ID, Range: applied.Range})
		}
		result.Resolved = len(result.Applied)
		r.logResult(result)
		return result, nil
	}

	snapshots := map[int64]*Snapshot{}
	for i, c := range conflicts {
		snap, ok := snapshots[c.OwnerID]
		if !ok {
			var err error
			snap, err = r.detector.Snapshot(ctx, c.OwnerID, ownerRanges(conflicts, c.OwnerID), prefs.MaxDayShift)
			if err != nil {
				return nil, fmt.Errorf("load schedule snapshot: %w", err)
			}
			snapshots[c.OwnerID] = snap
		}

		opts, err := r.exclusions(ctx, c)
		if err != nil {
			return nil, err
		}

		if strategy == StrategySuggest {
			found, err := r.suggest(ctx, i, c, prefs, snap, opts)
			if err != nil {
				return result, err
			}
			if len(found) > 0 {
				result.Resolved++
			}
			result.Suggestions = append(result.Suggestions, found...)
			continue
		}

		applied, err := r.autoAdjust(ctx, i, c, prefs, snap, opts)
		if err != nil {
			var noRes *model.NoResolutionFoundError
			if errors.As(err, &noRes) {
				result.Failures = append(result.Failures, ResolutionFailure{
					ConflictIndex: i,
					Kind:          noRes.Kind(),
					Message:       noRes.Error(),
					Fields:        noRes.Fields(),
				})
				continue
			}
			return result, err
		}
		result.Applied = append(result.Applied, *applied)
	}

	if strategy == StrategyAutoAdjust {
		result.Resolved = len(result.Applied)
	}
	r.logResult(result)
	return result, nil
}

func (r *ConflictResolver) suggest(ctx context.Context, index int, c Conflict, prefs Preferences, snap *Snapshot, opts DetectOptions) ([]Suggestion, error) {
	out := []Suggestion{}
	_, err := eachCandidate(ctx, c.ProposedRange, prefs, func(cand candidate) bool {
		if snap.Detect(cand.rng, opts).HasConflicts() {
			return true
		}
		out = append(out, Suggestion{
			ConflictIndex:     index,
			Range:             cand.rng,
			AdjustmentMinutes: cand.adjustment,
			DayOffset:         cand.dayOffset,
			Confidence:        cand.confidence(),
		})
		return prefs.MaxSuggestions <= 0 || len(out) < prefs.MaxSuggestions
	})
	return out, err
}

func (r *ConflictResolver) autoAdjust(ctx context.Context, index int, c Conflict, prefs Preferences, snap *Snapshot, opts DetectOptions) (*AppliedResolution, error) {
	var (
		applied  *AppliedResolution
		applyErr error
	)
	try := func(cand candidate) bool {
		if snap.Detect(cand.rng, opts).HasConflicts() {
			return true
		}

		slot, err := r.apply(ctx, c, cand.rng, true)
		if err != nil {
			// Диапазон заняли после загрузки среза, пробуем следующий
			if model.KindOf(err) == model.KindSlotUnavailable {
				return true
			}
			applyErr = err
			return false
		}
		snap.ReplaceSlot(slot)

		applied = &AppliedResolution{
			ConflictIndex:     index,
			SlotID:            slot.ID,
			Range:             slot.Range,
			AdjustmentMinutes: cand.adjustment,
			DayOffset:         cand.dayOffset,
		}
		return false
	}

	// Если исходный диапазон уже свободен, сдвигать нечего
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !try(candidate{rng: c.ProposedRange}) {
		return applied, applyErr
	}

	seen, err := eachCandidate(ctx, c.ProposedRange, prefs, try)
	switch {
	case err != nil:
		return nil, err
	case applyErr != nil:
		return nil, applyErr
	case applied != nil:
		return applied, nil
	}
	return nil, &model.NoResolutionFoundError{ConflictIndex: index, Range: c.ProposedRange, Candidates: seen + 1}
}

// apply переносит существующий слот или создаёт новый
func (r *ConflictResolver) apply(ctx context.Context, c Conflict, rng model.TimeRange, exclusive bool) (*model.Slot, error) {
	if c.SlotID != nil {
		return r.store.MoveSlot(ctx, *c.SlotID, rng, exclusive)
	}

	slot, err := model.NewSlot(c.OwnerID, rng, c.Subject, model.SlotStatusAvailable)
	if err != nil {
		return nil, err
	}
	created, err := r.store.CreateSlots(ctx, []*model.Slot{slot}, exclusive)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// exclusions перемещаемый слот не конфликтует сам с собой и со своим шаблоном
func (r *ConflictResolver) exclusions(ctx context.Context, c Conflict) (DetectOptions, error) {
	if c.SlotID == nil {
		return DetectOptions{}, nil
	}
	slot, err := r.store.GetSlot(ctx, *c.SlotID)
	if err != nil {
		return DetectOptions{}, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return DetectOptions{}, &model.NotFoundError{Entity: "slot", ID: *c.SlotID}
	}
	opts := DetectOptions{ExcludeSlotIDs: []int64{slot.ID}}
	if slot.TemplateID != nil {
		opts.ExcludeTemplateIDs = []int64{*slot.TemplateID}
	}
	return opts, nil
}

func (r *ConflictResolver) logResult(result *ResolutionResult) {
	r.logger.Info("Conflicts resolved",
		zap.String("strategy", string(result.Strategy)),
		zap.Int("resolved", result.Resolved),
		zap.Int("applied", len(result.Applied)),
		zap.Int("suggestions", len(result.Suggestions)),
		zap.Int("failures", len(result.Failures)),
	)
}

// eachCandidate перебирает кандидатов в порядке удаления от исходного диапазона:
// сначала сдвиги по времени с шагом StepMinutes, затем (если можно) те же часы в соседние дни.
// Перед каждым кандидатом проверяется ctx; visit возвращает false, чтобы остановить перебор.
// Возвращает число переданных в visit кандидатов.
func eachCandidate(ctx context.Context, r model.TimeRange, prefs Preferences, visit func(candidate) bool) (int, error) {
	seen := 0

	for k := 1; k*prefs.StepMinutes <= prefs.MaxAdjustmentMinutes; k++ {
		if prefs.MaxIterations > 0 && k > prefs.MaxIterations {
			break
		}
		minutes := k * prefs.StepMinutes
		fits := false
		for _, dir := range directions(prefs.PreferredDirection) {
			if err := ctx.Err(); err != nil {
				return seen, err
			}
			shifted, err := r.Shift(minutes, dir)
			if err != nil {
				continue
			}
			fits = true
			adj := minutes
			if dir == model.DirectionEarlier {
				adj = -minutes
			}
			seen++
			if !visit(candidate{rng: shifted, adjustment: adj, steps: k}) {
				return seen, nil
			}
		}
		// Больший сдвиг тем более выйдет за пределы суток
		if !fits {
			break
		}
	}

	if prefs.AllowDayChange && r.IsDated() {
		for d := 1; d <= prefs.MaxDayShift; d++ {
			for _, dir := range directions(prefs.PreferredDirection) {
				if err := ctx.Err(); err != nil {
					return seen, err
				}
				offset := d
				if dir == model.DirectionEarlier {
					offset = -d
				}
				moved, err := r.ShiftDays(offset)
				if err != nil {
					continue
				}
				seen++
				if !visit(candidate{rng: moved, dayOffset: offset, steps: d}) {
					return seen, nil
				}
			}
		}
	}

	return seen, nil
}

func directions(preferred model.Direction) []model.Direction {
	switch preferred {
	case model.DirectionEarlier:
		return []model.Direction{model.DirectionEarlier}
	case model.DirectionLater:
		return []model.Direction{model.DirectionLater}
	default:
		return []model.Direction{model.DirectionEarlier, model.DirectionLater}
	}
}

func ownerRanges(conflicts []Conflict, ownerID int64) []model.TimeRange {
	var out []model.TimeRange
	for _, c := range conflicts {
		if c.OwnerID == ownerID {
			out = append(out, c.ProposedRange)
		}
	}
	return out
}
