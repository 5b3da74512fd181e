package model

import (
	"time"

	"github.com/google/uuid"
)

// RecurringTemplate шаблон регулярного занятия
type RecurringTemplate struct {
	ID        int64        `json:"id"`
	GroupID   uuid.UUID    `json:"groupId"` // общий для шаблонов, созданных одним запросом
	OwnerID   int64        `json:"ownerId"`
	DayOfWeek time.Weekday `json:"dayOfWeek"` // 0 = Sunday, 6 = Saturday
	StartTime WallClock    `json:"startTime"`
	EndTime   WallClock    `json:"endTime"`
	Subject   string       `json:"subject,omitempty"`
	IsActive  bool         `json:"active"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Range еженедельный диапазон шаблона
func (t *RecurringTemplate) Range() TimeRange {
	return WeeklyRange(t.DayOfWeek, t.StartTime, t.EndTime)
}

// OccurrenceOn диапазон вхождения шаблона на дату
func (t *RecurringTemplate) OccurrenceOn(date CalendarDate) TimeRange {
	return DatedRange(date, t.StartTime, t.EndTime)
}

// OccurrenceDates даты вхождений: ближайший день недели не раньше start плюс по 7 дней
func (t *RecurringTemplate) OccurrenceDates(start CalendarDate, weeks int) []CalendarDate {
	first := start.NextWeekday(t.DayOfWeek)
	dates := make([]CalendarDate, 0, weeks)
	for i := 0; i < weeks; i++ {
		dates = append(dates, first.AddDays(7*i))
	}
	return dates
}
