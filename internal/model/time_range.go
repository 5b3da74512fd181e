package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay верхняя граница WallClock (24:00 допускается только как конец диапазона)
const MinutesPerDay = 24 * 60

// WallClock время суток в минутах от полуночи. Часовые пояса не учитываются.
type WallClock int

// Clock создаёт WallClock из часов и минут
func Clock(hour, minute int) WallClock {
	return WallClock(hour*60 + minute)
}

// ParseWallClock разбирает строку формата "HH:MM"
func ParseWallClock(s string) (WallClock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("parse wall clock %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("parse wall clock %q: out of range", s)
	}
	return Clock(hour, minute), nil
}

func (c WallClock) Hour() int   { return int(c) / 60 }
func (c WallClock) Minute() int { return int(c) % 60 }

func (c WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c WallClock) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

func (c *WallClock) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("wall clock must be a string: %w", err)
	}
	parsed, err := ParseWallClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CalendarDate дата без времени и часового пояса
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// NewDate нормализует дату (31 апреля превращается в 1 мая, как в time.Date)
func NewDate(year int, month time.Month, day int) CalendarDate {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf берёт календарную дату момента в его собственной локации
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// ParseDate разбирает строку формата YYYY-MM-DD
func ParseDate(s string) (CalendarDate, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time возвращает полночь даты в указанной локации
func (d CalendarDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At возвращает момент времени для даты и времени суток
func (d CalendarDate) At(c WallClock, loc *time.Location) time.Time {
	return d.Time(loc).Add(time.Duration(c) * time.Minute)
}

func (d CalendarDate) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// NextWeekday первая дата с указанным днём недели, не раньше d
func (d CalendarDate) NextWeekday(w time.Weekday) CalendarDate {
	delta := (int(w) - int(d.Weekday()) + 7) % 7
	return d.AddDays(delta)
}

func (d CalendarDate) Compare(o CalendarDate) int {
	return d.Time(time.UTC).Compare(o.Time(time.UTC))
}

func (d CalendarDate) Before(o CalendarDate) bool { return d.Compare(o) < 0 }
func (d CalendarDate) After(o CalendarDate) bool  { return d.Compare(o) > 0 }
func (d CalendarDate) Equal(o CalendarDate) bool  { return d == o }
func (d CalendarDate) IsZero() bool               { return d == CalendarDate{} }

func (d CalendarDate) String() string {
	return d.Time(time.UTC).Format(dateLayout)
}

func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Direction направление сдвига диапазона
type Direction string

const (
	DirectionEarlier Direction = "earlier"
	DirectionLater   Direction = "later"
	DirectionAny     Direction = "any"
)

// TimeRange диапазон времени: либо шаблон по дню недели, либо конкретная дата.
// Интервал полуоткрытый [StartTime, EndTime).
type TimeRange struct {
	DayOfWeek *time.Weekday `json:"dayOfWeek,omitempty"`
	Date      *CalendarDate `json:"date,omitempty"`
	StartTime WallClock     `json:"startTime"`
	EndTime   WallClock     `json:"endTime"`
}

// DatedRange диапазон на конкретную дату
func DatedRange(date CalendarDate, start, end WallClock) TimeRange {
	return TimeRange{Date: &date, StartTime: start, EndTime: end}
}

// WeeklyRange еженедельный диапазон
func WeeklyRange(day time.Weekday, start, end WallClock) TimeRange {
	return TimeRange{DayOfWeek: &day, StartTime: start, EndTime: end}
}

func (r TimeRange) IsRecurring() bool { return r.DayOfWeek != nil }
func (r TimeRange) IsDated() bool     { return r.Date != nil }

// Weekday день недели диапазона (для датированного вычисляется из даты)
func (r TimeRange) Weekday() time.Weekday {
	if r.Date != nil {
		return r.Date.Weekday()
	}
	if r.DayOfWeek != nil {
		return *r.DayOfWeek
	}
	return time.Sunday
}

// Validate проверяет инварианты диапазона
func (r TimeRange) Validate() error {
	switch {
	case r.DayOfWeek == nil && r.Date == nil:
		return &InvalidRangeError{Range: r, Reason: "either dayOfWeek or date must be set"}
	case r.DayOfWeek != nil && r.Date != nil:
		return &InvalidRangeError{Range: r, Reason: "dayOfWeek and date are mutually exclusive"}
	case r.DayOfWeek != nil && (*r.DayOfWeek < time.Sunday || *r.DayOfWeek > time.Saturday):
		return &InvalidRangeError{Range: r, Reason: "dayOfWeek must be within 0..6"}
	case r.StartTime < 0 || r.EndTime > MinutesPerDay:
		return &InvalidRangeError{Range: r, Reason: "times must be within 00:00..24:00"}
	case r.StartTime >= r.EndTime:
		return &InvalidRangeError{Range: r, Reason: "startTime must be before endTime"}
	}
	return nil
}

// DurationMinutes длительность в минутах
func (r TimeRange) DurationMinutes() (int, error) {
	d := int(r.EndTime - r.StartTime)
	if d <= 0 {
		return 0, &InvalidRangeError{Range: r, Reason: "non-positive duration"}
	}
	return d, nil
}

// Shift сдвигает диапазон раньше или позже на minutes минут.
// Выход за пределы суток считается ошибкой: смена дня делается через ShiftDays.
func (r TimeRange) Shift(minutes int, dir Direction) (TimeRange, error) {
	if minutes < 0 {
		return r, &InvalidRangeError{Range: r, Reason: "shift magnitude must be non-negative"}
	}
	delta := WallClock(minutes)
	switch dir {
	case DirectionEarlier:
		delta = -delta
	case DirectionLater:
	default:
		return r, &InvalidRangeError{Range: r, Reason: fmt.Sprintf("unknown shift direction %q", dir)}
	}

	out := r.clone()
	out.StartTime += delta
	out.EndTime += delta
	if out.StartTime < 0 || out.EndTime > MinutesPerDay {
		return r, &InvalidRangeError{Range: out, Reason: "shift leaves the day"}
	}
	return out, nil
}

// ShiftDays переносит датированный диапазон на n дней
func (r TimeRange) ShiftDays(n int) (TimeRange, error) {
	if r.Date == nil {
		return r, &InvalidRangeError{Range: r, Reason: "only dated ranges can change day"}
	}
	out := r.clone()
	d := r.Date.AddDays(n)
	out.Date = &d
	return out, nil
}

// SameDay сравнивает дни; шаблон сопоставляется с датой по дню недели
func (r TimeRange) SameDay(o TimeRange) bool {
	switch {
	case r.Date != nil && o.Date != nil:
		return *r.Date == *o.Date
	case r.DayOfWeek != nil && o.DayOfWeek != nil:
		return *r.DayOfWeek == *o.DayOfWeek
	case r.Date == nil && r.DayOfWeek == nil, o.Date == nil && o.DayOfWeek == nil:
		return false
	default:
		return r.Weekday() == o.Weekday()
	}
}

// Overlaps истинно, если a.start < b.end и b.start < a.end в один и тот же день.
// Касание концами пересечением не считается.
func Overlaps(a, b TimeRange) bool {
	if !a.SameDay(b) {
		return false
	}
	return a.StartTime < b.EndTime && b.StartTime < a.EndTime
}

func (r TimeRange) Equal(o TimeRange) bool {
	if r.StartTime != o.StartTime || r.EndTime != o.EndTime {
		return false
	}
	if (r.Date == nil) != (o.Date == nil) || (r.DayOfWeek == nil) != (o.DayOfWeek == nil) {
		return false
	}
	if r.Date != nil && *r.Date != *o.Date {
		return false
	}
	return r.DayOfWeek == nil || *r.DayOfWeek == *o.DayOfWeek
}

func (r TimeRange) String() string {
	switch {
	case r.Date != nil:
		return fmt.Sprintf("%s %s-%s", r.Date, r.StartTime, r.EndTime)
	case r.DayOfWeek != nil:
		return fmt.Sprintf("%s %s-%s", *r.DayOfWeek, r.StartTime, r.EndTime)
	default:
		return fmt.Sprintf("%s-%s", r.StartTime, r.EndTime)
	}
}

func (r TimeRange) clone() TimeRange {
	out := TimeRange{StartTime: r.StartTime, EndTime: r.EndTime}
	if r.Date != nil {
		d := *r.Date
		out.Date = &d
	}
	if r.DayOfWeek != nil {
		w := *r.DayOfWeek
		out.DayOfWeek = &w
	}
	return out
}
