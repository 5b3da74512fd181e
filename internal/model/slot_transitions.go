package model

import "time"

// SlotEvent событие машины состояний слота
type SlotEvent string

const (
	EventMarkAvailable   SlotEvent = "markAvailable"
	EventMarkUnavailable SlotEvent = "markUnavailable"
	EventAssign          SlotEvent = "assign"
	EventConfirm         SlotEvent = "confirm"
	EventExpire          SlotEvent = "expire"
	EventDecline         SlotEvent = "decline"
	EventDirectBook      SlotEvent = "directBook"
	EventCancel          SlotEvent = "cancel"
	EventComplete        SlotEvent = "complete"
	EventWithdraw        SlotEvent = "withdraw"
	EventDelete          SlotEvent = "delete"
)

// BookingEffect изменение записи бронирования, сопровождающее переход
type BookingEffect int

const (
	BookingEffectNone BookingEffect = iota
	BookingEffectCreate
	BookingEffectCancel
	BookingEffectComplete
)

// Transition запрос на переход. At - момент применения (из Clock сервиса).
type Transition struct {
	Event     SlotEvent
	StudentID int64
	TTL       time.Duration
	At        time.Time
}

// TransitionResult итог применённого перехода
type TransitionResult struct {
	Slot     *Slot
	Previous SlotStatus
	Booking  BookingEffect
	// StudentID студент, которого касается переход (для бронирования и уведомлений)
	StudentID *int64
}

// Released освободил ли переход время, ранее закреплённое за студентом
func (r TransitionResult) Released() bool {
	return r.Previous != r.Slot.Status && r.Slot.Status == SlotStatusAvailable &&
		(r.Previous == SlotStatusAssigned || r.Previous == SlotStatusBooked)
}

var slotTransitions = map[SlotStatus]map[SlotEvent]SlotStatus{
	SlotStatusUnavailable: {
		EventMarkAvailable: SlotStatusAvailable,
		EventWithdraw:      SlotStatusCancelled,
	},
	SlotStatusAvailable: {
		EventMarkUnavailable: SlotStatusUnavailable,
		EventAssign:          SlotStatusAssigned,
		EventDirectBook:      SlotStatusBooked,
		EventWithdraw:        SlotStatusCancelled,
	},
	SlotStatusAssigned: {
		EventConfirm: SlotStatusBooked,
		EventExpire:  SlotStatusAvailable,
		EventDecline: SlotStatusAvailable,
	},
	SlotStatusBooked: {
		EventCancel:   SlotStatusAvailable,
		EventComplete: SlotStatusCompleted,
	},
}

// CanApply допустимо ли событие в текущем состоянии
func (s *Slot) CanApply(event SlotEvent) bool {
	_, ok := slotTransitions[s.Status][event]
	return ok
}

// Apply вычисляет новое состояние слота. Исходный слот не меняется.
func (s *Slot) Apply(t Transition) (TransitionResult, error) {
	next, ok := slotTransitions[s.Status][t.Event]
	if !ok {
		return TransitionResult{}, s.invalid(t.Event)
	}

	out := s.Clone()
	res := TransitionResult{Slot: out, Previous: s.Status}

	switch t.Event {
	case EventAssign:
		if t.StudentID == 0 || t.TTL <= 0 {
			return TransitionResult{}, &InvalidRangeError{Range: s.Range, Reason: "assignment requires a student and a positive ttl"}
		}
		student := t.StudentID
		expiry := t.At.Add(t.TTL)
		out.AssignedStudentID = &student
		out.AssignmentExpiry = &expiry
		res.StudentID = &student

	case EventConfirm:
		if s.AssignedStudentID == nil || *s.AssignedStudentID != t.StudentID {
			return TransitionResult{}, &SlotUnavailableError{SlotID: s.ID, Range: s.Range, Reason: "slot is assigned to another student"}
		}
		student := t.StudentID
		out.clearAssignment()
		out.BookedBy = &student
		res.StudentID = &student
		res.Booking = BookingEffectCreate

	case EventExpire:
		if s.AssignmentExpiry == nil || t.At.Before(*s.AssignmentExpiry) {
			return TransitionResult{}, s.invalid(t.Event)
		}
		res.StudentID = s.AssignedStudentID
		out.clearAssignment()

	case EventDecline:
		res.StudentID = s.AssignedStudentID
		out.clearAssignment()

	case EventDirectBook:
		if t.StudentID == 0 {
			return TransitionResult{}, &SlotUnavailableError{SlotID: s.ID, Range: s.Range, Reason: "booking requires a student"}
		}
		student := t.StudentID
		out.BookedBy = &student
		res.StudentID = &student
		res.Booking = BookingEffectCreate

	case EventCancel:
		res.StudentID = s.BookedBy
		out.BookedBy = nil
		res.Booking = BookingEffectCancel

	case EventComplete:
		res.StudentID = s.BookedBy
		res.Booking = BookingEffectComplete
	}

	out.Status = next
	out.UpdatedAt = t.At
	return res, nil
}

// CheckDelete проверяет, можно ли удалить слот с учётом зависимых бронирований.
// Завершённые и отменённые слоты хранятся для истории и не удаляются даже с force.
func (s *Slot) CheckDelete(force bool, dependents int) error {
	if s.Status == SlotStatusCompleted || s.Status == SlotStatusCancelled {
		return s.invalid(EventDelete)
	}
	if force {
		return nil
	}
	if s.HasStudent() {
		return s.invalid(EventDelete)
	}
	if dependents > 0 {
		return &HasDependentsError{SlotID: s.ID, Dependents: dependents}
	}
	return nil
}

func (s *Slot) clearAssignment() {
	s.AssignedStudentID = nil
	s.AssignmentExpiry = nil
}

func (s *Slot) invalid(event SlotEvent) error {
	return &InvalidTransitionError{
		Entity:       "slot",
		ID:           s.ID,
		CurrentState: string(s.Status),
		Event:        string(event),
	}
}
