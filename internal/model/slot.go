package model

import "time"

type SlotStatus string

const (
	SlotStatusUnavailable SlotStatus = "unavailable"
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusAssigned    SlotStatus = "assigned" // предложен студенту, ждёт подтверждения
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusCompleted   SlotStatus = "completed"
	SlotStatusCancelled   SlotStatus = "cancelled" // снят с расписания, хранится для истории
)

// Slot конкретное занятие на дату
type Slot struct {
	ID                int64      `json:"id"`
	OwnerID           int64      `json:"ownerId"`
	TemplateID        *int64     `json:"templateId,omitempty"` // nil - слот создан вручную
	Range             TimeRange  `json:"range"`
	DurationMinutes   int        `json:"durationMinutes"`
	Subject           string     `json:"subject,omitempty"`
	Status            SlotStatus `json:"status"`
	AssignedStudentID *int64     `json:"assignedStudentId,omitempty"`
	AssignmentExpiry  *time.Time `json:"assignmentExpiry,omitempty"`
	BookedBy          *int64     `json:"bookedBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NewSlot готовит слот к сохранению: проверяет диапазон и считает длительность
func NewSlot(ownerID int64, r TimeRange, subject string, status SlotStatus) (*Slot, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !r.IsDated() {
		return nil, &InvalidRangeError{Range: r, Reason: "slot requires a concrete date"}
	}
	if status == "" {
		status = SlotStatusAvailable
	}
	if status != SlotStatusAvailable && status != SlotStatusUnavailable {
		return nil, &InvalidRangeError{Range: r, Reason: "new slot must be available or unavailable"}
	}
	duration, _ := r.DurationMinutes()
	return &Slot{
		OwnerID:         ownerID,
		Range:           r,
		DurationMinutes: duration,
		Subject:         subject,
		Status:          status,
	}, nil
}

// Date дата слота (у слота диапазон всегда датированный)
func (s *Slot) Date() CalendarDate {
	if s.Range.Date == nil {
		return CalendarDate{}
	}
	return *s.Range.Date
}

// BlocksTime занимает ли слот время в расписании
func (s *Slot) BlocksTime() bool {
	return s.Status != SlotStatusCancelled
}

// HasStudent слот закреплён за студентом (предложен или забронирован)
func (s *Slot) HasStudent() bool {
	return s.Status == SlotStatusAssigned || s.Status == SlotStatusBooked
}

// StudentID студент, закреплённый за слотом, если есть
func (s *Slot) StudentID() *int64 {
	switch s.Status {
	case SlotStatusAssigned:
		return s.AssignedStudentID
	case SlotStatusBooked, SlotStatusCompleted:
		return s.BookedBy
	}
	return nil
}

func (s *Slot) Clone() *Slot {
	out := *s
	out.Range = s.Range.clone()
	if s.TemplateID != nil {
		v := *s.TemplateID
		out.TemplateID = &v
	}
	if s.AssignedStudentID != nil {
		v := *s.AssignedStudentID
		out.AssignedStudentID = &v
	}
	if s.AssignmentExpiry != nil {
		v := *s.AssignmentExpiry
		out.AssignmentExpiry = &v
	}
	if s.BookedBy != nil {
		v := *s.BookedBy
		out.BookedBy = &v
	}
	return &out
}
