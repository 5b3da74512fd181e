package model

import (
	"errors"
	"fmt"
)

// ErrorKind машиночитаемый тип ошибки планировщика
type ErrorKind string

const (
	KindInvalidRange       ErrorKind = "INVALID_RANGE"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindHasDependents      ErrorKind = "HAS_DEPENDENTS"
	KindRecurringConflicts ErrorKind = "RECURRING_CONFLICTS"
	KindNoResolutionFound  ErrorKind = "NO_RESOLUTION_FOUND"
	KindAlreadyQueued      ErrorKind = "ALREADY_QUEUED"
	KindNoAdjacentEntry    ErrorKind = "NO_ADJACENT_ENTRY"
	KindSlotUnavailable    ErrorKind = "SLOT_UNAVAILABLE"
	KindNotFound           ErrorKind = "NOT_FOUND"
)

// KindedError реализуют все структурированные ошибки планировщика.
// Fields содержит контекст для построения сообщения без разбора строки.
type KindedError interface {
	error
	Kind() ErrorKind
	Fields() map[string]any
}

// KindOf возвращает тип ошибки или пустую строку, если ошибка не структурированная
func KindOf(err error) ErrorKind {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return ""
}

// InvalidRangeError некорректный временной диапазон
type InvalidRangeError struct {
	Range  TimeRange
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range %s: %s", e.Range, e.Reason)
}

func (e *InvalidRangeError) Kind() ErrorKind { return KindInvalidRange }

func (e *InvalidRangeError) Fields() map[string]any {
	return map[string]any{"range": e.Range, "reason": e.Reason}
}

// InvalidTransitionError событие недопустимо в текущем состоянии
type InvalidTransitionError struct {
	Entity       string // "slot" или "waitlist_entry"
	ID           int64
	CurrentState string
	Event        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %d: event %q is not allowed in state %q", e.Entity, e.ID, e.Event, e.CurrentState)
}

func (e *InvalidTransitionError) Kind() ErrorKind { return KindInvalidTransition }

func (e *InvalidTransitionError) Fields() map[string]any {
	return map[string]any{
		"entity":       e.Entity,
		"id":           e.ID,
		"currentState": e.CurrentState,
		"event":        e.Event,
	}
}

// HasDependentsError удаление заблокировано зависимыми записями
type HasDependentsError struct {
	SlotID     int64
	Dependents int
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("slot %d has %d dependent booking rows, use force to delete", e.SlotID, e.Dependents)
}

func (e *HasDependentsError) Kind() ErrorKind { return KindHasDependents }

func (e *HasDependentsError) Fields() map[string]any {
	return map[string]any{"slotId": e.SlotID, "dependents": e.Dependents}
}

// RecurringConflictsError фиксация серии заблокирована конфликтами
type RecurringConflictsError struct {
	Conflicts []OccurrenceConflict
}

func (e *RecurringConflictsError) Error() string {
	return fmt.Sprintf("recurring expansion has %d conflicting occurrences", len(e.Conflicts))
}

func (e *RecurringConflictsError) Kind() ErrorKind { return KindRecurringConflicts }

func (e *RecurringConflictsError) Fields() map[string]any {
	return map[string]any{"conflicts": e.Conflicts}
}

// NoResolutionFoundError перебор кандидатов не дал свободного диапазона
type NoResolutionFoundError struct {
	ConflictIndex int
	Range         TimeRange
	Candidates    int
}

func (e *NoResolutionFoundError) Error() string {
	return fmt.Sprintf("no conflict-free alternative for %s after %d candidates", e.Range, e.Candidates)
}

func (e *NoResolutionFoundError) Kind() ErrorKind { return KindNoResolutionFound }

func (e *NoResolutionFoundError) Fields() map[string]any {
	return map[string]any{
		"conflictIndex": e.ConflictIndex,
		"range":         e.Range,
		"candidates":    e.Candidates,
	}
}

// AlreadyQueuedError студент уже стоит в очереди на пересекающееся окно
type AlreadyQueuedError struct {
	RequesterID     int64
	OwnerID         int64
	ExistingEntryID int64
}

func (e *AlreadyQueuedError) Error() string {
	return fmt.Sprintf("requester %d already queued for owner %d (entry %d)", e.RequesterID, e.OwnerID, e.ExistingEntryID)
}

func (e *AlreadyQueuedError) Kind() ErrorKind { return KindAlreadyQueued }

func (e *AlreadyQueuedError) Fields() map[string]any {
	return map[string]any{
		"requesterId":     e.RequesterID,
		"ownerId":         e.OwnerID,
		"existingEntryId": e.ExistingEntryID,
	}
}

// NoAdjacentEntryError запись уже на границе очереди
type NoAdjacentEntryError struct {
	EntryID   int64
	Direction string // "front" или "back"
}

func (e *NoAdjacentEntryError) Error() string {
	return fmt.Sprintf("waitlist entry %d has no adjacent entry towards the %s", e.EntryID, e.Direction)
}

func (e *NoAdjacentEntryError) Kind() ErrorKind { return KindNoAdjacentEntry }

func (e *NoAdjacentEntryError) Fields() map[string]any {
	return map[string]any{"entryId": e.EntryID, "direction": e.Direction}
}

// SlotUnavailableError слот занят (проигрыш в гонке бронирования или пересечение при создании).
// Conflicts заполняется, когда причина в пересечении с существующим расписанием.
type SlotUnavailableError struct {
	SlotID    int64
	Range     TimeRange
	Reason    string
	Conflicts *ConflictReport
}

func (e *SlotUnavailableError) Error() string {
	if e.SlotID != 0 {
		return fmt.Sprintf("slot %d is unavailable: %s", e.SlotID, e.Reason)
	}
	return fmt.Sprintf("time range %s is unavailable: %s", e.Range, e.Reason)
}

func (e *SlotUnavailableError) Kind() ErrorKind { return KindSlotUnavailable }

func (e *SlotUnavailableError) Fields() map[string]any {
	fields := map[string]any{"slotId": e.SlotID, "range": e.Range, "reason": e.Reason}
	if e.Conflicts != nil {
		fields["conflicts"] = e.Conflicts
	}
	return fields
}

// NotFoundError сущность не найдена
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

func (e *NotFoundError) Fields() map[string]any {
	return map[string]any{"entity": e.Entity, "id": e.ID}
}
