package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
)

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(db base.DBTX) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(db)}
}

// Create создаёт новое бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (slot_id, owner_id, student_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		booking.SlotID,
		booking.OwnerID,
		booking.StudentID,
		booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetBySlotID история бронирований слота
func (r *BookingRepository) GetBySlotID(ctx context.Context, slotID int64) ([]*model.Booking, error) {
	query := `
		SELECT id, slot_id, owner_id, student_id, status, created_at, updated_at
		FROM bookings
		WHERE slot_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.DB().Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("get bookings by slot: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		var booking model.Booking
		err := rows.Scan(
			&booking.ID,
			&booking.SlotID,
			&booking.OwnerID,
			&booking.StudentID,
			&booking.Status,
			&booking.CreatedAt,
			&booking.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, &booking)
	}

	return bookings, rows.Err()
}

// CountBySlotID количество бронирований, ссылающихся на слот
func (r *BookingRepository) CountBySlotID(ctx context.Context, slotID int64) (int, error) {
	var count int
	err := r.DB().QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE slot_id = $1`, slotID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return count, nil
}

// CloseActive переводит подтверждённое бронирование слота в конечный статус
func (r *BookingRepository) CloseActive(ctx context.Context, slotID int64, status model.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE slot_id = $2 AND status = 'confirmed'
	`

	if _, err := r.DB().Exec(ctx, query, status, slotID); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}
