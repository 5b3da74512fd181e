package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
)

type BlockedPeriodRepository struct {
	*base.Repository
}

func NewBlockedPeriodRepository(db base.DBTX) *BlockedPeriodRepository {
	return &BlockedPeriodRepository{Repository: base.NewRepository(db)}
}

// Create создаёт заблокированный период
func (r *BlockedPeriodRepository) Create(ctx context.Context, p *model.BlockedPeriod) error {
	query := `
		INSERT INTO blocked_periods (owner_id, weekday, block_date, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.DB().QueryRow(ctx, query,
		p.OwnerID,
		base.NullableWeekday(p.Range.DayOfWeek),
		base.NullableDate(p.Range.Date),
		int32(p.Range.StartTime),
		int32(p.Range.EndTime),
		p.Reason,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create blocked period: %w", err)
	}
	return nil
}

// GetByOwner еженедельные периоды и датированные в диапазоне дат
func (r *BlockedPeriodRepository) GetByOwner(ctx context.Context, ownerID int64, from, to model.CalendarDate) ([]*model.BlockedPeriod, error) {
	query := `
		SELECT id, owner_id, weekday, block_date, start_minute, end_minute, reason, created_at
		FROM blocked_periods
		WHERE owner_id = $1
		  AND (block_date IS NULL OR block_date BETWEEN $2 AND $3)
		ORDER BY id
	`

	rows, err := r.DB().Query(ctx, query, ownerID, base.DateArg(from), base.DateArg(to))
	if err != nil {
		return nil, fmt.Errorf("get blocked periods: %w", err)
	}
	defer rows.Close()

	var periods []*model.BlockedPeriod
	for rows.Next() {
		var (
			p          model.BlockedPeriod
			weekday    *int16
			date       *time.Time
			start, end int32
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &weekday, &date, &start, &end, &p.Reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blocked period: %w", err)
		}
		p.Range = base.RangeFromColumns(weekday, date, start, end)
		periods = append(periods, &p)
	}
	return periods, rows.Err()
}
