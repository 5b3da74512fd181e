package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const slotColumns = `id, owner_id, template_id, slot_date, start_minute, end_minute, subject, status,
	assigned_student_id, assignment_expiry, booked_by, created_at, updated_at`

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(db base.DBTX) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(db)}
}

func scanSlot(row pgx.Row) (*model.Slot, error) {
	var (
		slot       model.Slot
		date       time.Time
		start, end int32
	)
	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.TemplateID,
		&date,
		&start,
		&end,
		&slot.Subject,
		&slot.Status,
		&slot.AssignedStudentID,
		&slot.AssignmentExpiry,
		&slot.BookedBy,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.Range = base.RangeFromColumns(nil, &date, start, end)
	slot.DurationMinutes = int(end - start)
	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]*model.Slot, error) {
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (owner_id, template_id, slot_date, start_minute, end_minute, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx, query,
		slot.OwnerID,
		slot.TemplateID,
		base.DateArg(slot.Date()),
		int32(slot.Range.StartTime),
		int32(slot.Range.EndTime),
		slot.Subject,
		slot.Status,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	return r.getOne(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
}

// GetByIDForUpdate блокирует строку слота до конца транзакции
func (r *SlotRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Slot, error) {
	return r.getOne(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *SlotRepository) getOne(ctx context.Context, query string, id int64) (*model.Slot, error) {
	slot, err := scanSlot(r.DB().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}
	return slot, nil
}

// GetByOwner слоты владельца в диапазоне дат включительно
func (r *SlotRepository) GetByOwner(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = $1
		  AND slot_date BETWEEN $2 AND $3
		ORDER BY slot_date, start_minute, id
	`

	rows, err := r.DB().Query(ctx, query, ownerID, base.DateArg(from), base.DateArg(to))
	if err != nil {
		return nil, fmt.Errorf("get owner slots: %w", err)
	}
	return collectSlots(rows)
}

// GetByTemplate вхождения шаблона начиная с даты
func (r *SlotRepository) GetByTemplate(ctx context.Context, templateID int64, from model.CalendarDate) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE template_id = $1
		  AND slot_date >= $2
		ORDER BY slot_date, start_minute, id
	`

	rows, err := r.DB().Query(ctx, query, templateID, base.DateArg(from))
	if err != nil {
		return nil, fmt.Errorf("get template slots: %w", err)
	}
	return collectSlots(rows)
}

// GetExpiredAssignments назначения, срок подтверждения которых истёк
func (r *SlotRepository) GetExpiredAssignments(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = 'assigned'
		  AND assignment_expiry <= $1
		ORDER BY assignment_expiry, id
	`

	rows, err := r.DB().Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("get expired assignments: %w", err)
	}
	return collectSlots(rows)
}

// FindOverlapping первый занимающий время слот владельца, пересекающийся с диапазоном
func (r *SlotRepository) FindOverlapping(ctx context.Context, ownerID int64, rng model.TimeRange, skipID int64) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE owner_id = $1
		  AND slot_date = $2
		  AND start_minute < $4
		  AND $3 < end_minute
		  AND status <> 'cancelled'
		  AND id <> $5
		ORDER BY start_minute
		LIMIT 1
	`

	slot, err := scanSlot(r.DB().QueryRow(ctx, query,
		ownerID,
		base.NullableDate(rng.Date),
		int32(rng.StartTime),
		int32(rng.EndTime),
		skipID,
	))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find overlapping slot: %w", err)
	}
	return slot, nil
}

// Save сохраняет состояние слота после перехода
func (r *SlotRepository) Save(ctx context.Context, slot *model.Slot) error {
	query := `
		UPDATE slots
		SET status = $1,
		    assigned_student_id = $2,
		    assignment_expiry = $3,
		    booked_by = $4,
		    updated_at = $5
		WHERE id = $6
	`

	affected, err := r.ExecAffected(ctx, query,
		slot.Status,
		slot.AssignedStudentID,
		slot.AssignmentExpiry,
		slot.BookedBy,
		slot.UpdatedAt,
		slot.ID,
	)
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "slot", ID: slot.ID}
	}
	return nil
}

// Move переносит слот на другой диапазон
func (r *SlotRepository) Move(ctx context.Context, id int64, rng model.TimeRange) error {
	query := `
		UPDATE slots
		SET slot_date = $1, start_minute = $2, end_minute = $3, updated_at = NOW()
		WHERE id = $4
	`

	affected, err := r.ExecAffected(ctx, query, base.NullableDate(rng.Date), int32(rng.StartTime), int32(rng.EndTime), id)
	if err != nil {
		return fmt.Errorf("move slot: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "slot", ID: id}
	}
	return nil
}

// Delete удаляет слот (бронирования удаляются каскадом)
func (r *SlotRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "slot", ID: id}
	}
	return nil
}

// Unlink отвязывает слоты от шаблона
func (r *SlotRepository) Unlink(ctx context.Context, ids []int64) error {
	_, err := r.DB().Exec(ctx, `UPDATE slots SET template_id = NULL, updated_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("unlink slots: %w", err)
	}
	return nil
}
