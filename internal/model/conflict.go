package model

import "github.com/goccy/go-json"

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConflictReport результат проверки одного предложенного диапазона. Не сохраняется.
type ConflictReport struct {
	ProposedRange         TimeRange           `json:"proposedRange"`
	TimeSlotConflicts     []RecurringTemplate `json:"timeSlotConflicts"`
	ScheduleSlotConflicts []Slot              `json:"scheduleSlotConflicts"`
	BlockedSlotConflicts  []BlockedPeriod     `json:"blockedSlotConflicts"`
}

// NewConflictReport пустой отчёт (коллекции не nil, чтобы в JSON были [])
func NewConflictReport(r TimeRange) ConflictReport {
	return ConflictReport{
		ProposedRange:         r,
		TimeSlotConflicts:     []RecurringTemplate{},
		ScheduleSlotConflicts: []Slot{},
		BlockedSlotConflicts:  []BlockedPeriod{},
	}
}

func (r ConflictReport) Total() int {
	return len(r.TimeSlotConflicts) + len(r.ScheduleSlotConflicts) + len(r.BlockedSlotConflicts)
}

func (r ConflictReport) HasConflicts() bool { return r.Total() > 0 }

// Severity эвристика для вызывающей стороны: >=3 high, >=2 medium, иначе low
func (r ConflictReport) Severity() Severity {
	switch total := r.Total(); {
	case total >= 3:
		return SeverityHigh
	case total >= 2:
		return SeverityMedium
	case total >= 1:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// ConflictingSlotIDs идентификаторы пересекающихся слотов
func (r ConflictReport) ConflictingSlotIDs() []int64 {
	ids := make([]int64, 0, len(r.ScheduleSlotConflicts))
	for _, s := range r.ScheduleSlotConflicts {
		ids = append(ids, s.ID)
	}
	return ids
}

func (r ConflictReport) MarshalJSON() ([]byte, error) {
	type plain ConflictReport
	return json.Marshal(struct {
		plain
		Total    int      `json:"total"`
		Severity Severity `json:"severity"`
	}{plain(r), r.Total(), r.Severity()})
}

// OccurrenceConflict конфликт одного вхождения шаблона при развёртке серии
type OccurrenceConflict struct {
	TemplateIndex int            `json:"templateIndex"`
	Date          CalendarDate   `json:"date"`
	Report        ConflictReport `json:"report"`
}
