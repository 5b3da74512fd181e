package model

import "time"

// BlockedPeriod время, недоступное для занятий (разово по дате или еженедельно)
type BlockedPeriod struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Range     TimeRange `json:"range"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
