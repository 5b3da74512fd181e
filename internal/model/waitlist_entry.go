package model

import (
	"fmt"
	"time"
)

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusFulfilled WaitlistStatus = "fulfilled"
)

// IsTerminal expired и fulfilled - неизменяемая история
func (s WaitlistStatus) IsTerminal() bool {
	return s == WaitlistStatusExpired || s == WaitlistStatusFulfilled
}

// ActiveWaitlistStatuses статусы записей, которые ещё стоят в очереди
var ActiveWaitlistStatuses = []WaitlistStatus{WaitlistStatusWaiting, WaitlistStatusNotified}

// Bucket ключ очереди: владелец + день недели или дата + время
type Bucket string

// BucketFor строит ключ очереди для желаемого диапазона
func BucketFor(ownerID int64, r TimeRange) Bucket {
	day := "dow" + fmt.Sprint(int(r.Weekday()))
	if r.Date != nil {
		day = r.Date.String()
	}
	return Bucket(fmt.Sprintf("%d/%s/%s-%s", ownerID, day, r.StartTime, r.EndTime))
}

// WaitlistEntry запись в очереди ожидания
type WaitlistEntry struct {
	ID           int64          `json:"id"`
	RequesterID  int64          `json:"requesterId"`
	OwnerID      int64          `json:"ownerId"`
	DesiredRange TimeRange      `json:"desiredRange"`
	Bucket       Bucket         `json:"bucket"`
	Priority     int            `json:"priority"` // меньше - ближе к началу очереди
	Status       WaitlistStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	ExpiresAt    *time.Time     `json:"expiresAt,omitempty"`
	NotifiedAt   *time.Time     `json:"notifiedAt,omitempty"`
	FulfilledAt  *time.Time     `json:"fulfilledAt,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

// OverlapsWith пересекаются ли окна двух записей одного владельца
func (e *WaitlistEntry) OverlapsWith(o *WaitlistEntry) bool {
	return e.OwnerID == o.OwnerID && Overlaps(e.DesiredRange, o.DesiredRange)
}

// MarkNotified waiting -> notified
func (e *WaitlistEntry) MarkNotified(now time.Time, ttl time.Duration) error {
	if e.Status != WaitlistStatusWaiting {
		return e.invalid("notify")
	}
	if ttl <= 0 {
		return fmt.Errorf("notify waitlist entry %d: ttl must be positive", e.ID)
	}
	expires := now.Add(ttl)
	notified := now
	e.Status = WaitlistStatusNotified
	e.NotifiedAt = &notified
	e.ExpiresAt = &expires
	return nil
}

// Fulfill notified -> fulfilled
func (e *WaitlistEntry) Fulfill(now time.Time) error {
	if e.Status != WaitlistStatusNotified {
		return e.invalid("fulfill")
	}
	fulfilled := now
	e.Status = WaitlistStatusFulfilled
	e.FulfilledAt = &fulfilled
	return nil
}

// NotificationLapsed истекло ли время ответа на уведомление
func (e *WaitlistEntry) NotificationLapsed(now time.Time) bool {
	return e.Status == WaitlistStatusNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Expire notified -> expired, только если срок действительно истёк.
// Возвращает false, если запись уже не подходит (повторный вызов не ошибка).
func (e *WaitlistEntry) Expire(now time.Time) bool {
	if !e.NotificationLapsed(now) {
		return false
	}
	e.Status = WaitlistStatusExpired
	return true
}

// CheckRemovable отозвать можно только запись, которая ещё в очереди
func (e *WaitlistEntry) CheckRemovable() error {
	if e.Status.IsTerminal() {
		return e.invalid("remove")
	}
	return nil
}

func (e *WaitlistEntry) Clone() *WaitlistEntry {
	out := *e
	out.DesiredRange = e.DesiredRange.clone()
	if e.ExpiresAt != nil {
		v := *e.ExpiresAt
		out.ExpiresAt = &v
	}
	if e.NotifiedAt != nil {
		v := *e.NotifiedAt
		out.NotifiedAt = &v
	}
	if e.FulfilledAt != nil {
		v := *e.FulfilledAt
		out.FulfilledAt = &v
	}
	return &out
}

func (e *WaitlistEntry) invalid(event string) error {
	return &InvalidTransitionError{
		Entity:       "waitlist_entry",
		ID:           e.ID,
		CurrentState: string(e.Status),
		Event:        event,
	}
}
