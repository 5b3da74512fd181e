package model

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCompleted BookingStatus = "completed" // Завершено
	BookingStatusCanceled  BookingStatus = "canceled"  // Отменено
)

// Booking запись о бронировании слота, остаётся после отмены для истории
type Booking struct {
	ID        int64         `json:"id"`
	SlotID    int64         `json:"slotId"`
	OwnerID   int64         `json:"ownerId"`
	StudentID int64         `json:"studentId"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
