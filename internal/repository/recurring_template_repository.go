package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const templateColumns = `id, group_id, owner_id, weekday, start_minute, end_minute, subject, is_active, created_at, updated_at`

// RecurringTemplateRepository управляет шаблонами регулярных занятий в базе данных
type RecurringTemplateRepository struct {
	*base.Repository
}

// NewRecurringTemplateRepository создаёт новый репозиторий
func NewRecurringTemplateRepository(db base.DBTX) *RecurringTemplateRepository {
	return &RecurringTemplateRepository{Repository: base.NewRepository(db)}
}

func scanTemplate(row pgx.Row) (*model.RecurringTemplate, error) {
	var (
		t          model.RecurringTemplate
		weekday    int16
		start, end int32
	)
	err := row.Scan(
		&t.ID,
		&t.GroupID,
		&t.OwnerID,
		&weekday,
		&start,
		&end,
		&t.Subject,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.DayOfWeek = time.Weekday(weekday)
	t.StartTime = model.WallClock(start)
	t.EndTime = model.WallClock(end)
	return &t, nil
}

func (r *RecurringTemplateRepository) list(ctx context.Context, query string, args ...any) ([]*model.RecurringTemplate, error) {
	rows, err := r.DB().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Create создаёт новый шаблон
func (r *RecurringTemplateRepository) Create(ctx context.Context, t *model.RecurringTemplate) error {
	query := `
		INSERT INTO recurring_templates (group_id, owner_id, weekday, start_minute, end_minute, subject, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(
		ctx,
		query,
		t.GroupID,
		t.OwnerID,
		int16(t.DayOfWeek),
		int32(t.StartTime),
		int32(t.EndTime),
		t.Subject,
		t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create recurring template: %w", err)
	}

	return nil
}

// GetByID получает шаблон по ID
func (r *RecurringTemplateRepository) GetByID(ctx context.Context, id int64) (*model.RecurringTemplate, error) {
	t, err := scanTemplate(r.DB().QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recurring template by id: %w", err)
	}
	return t, nil
}

// GetByOwnerID получает все шаблоны владельца
func (r *RecurringTemplateRepository) GetByOwnerID(ctx context.Context, ownerID int64) ([]*model.RecurringTemplate, error) {
	return r.list(ctx, `
		SELECT `+templateColumns+`
		FROM recurring_templates
		WHERE owner_id = $1
		ORDER BY weekday, start_minute
	`, ownerID)
}

// GetAllActive получает все активные шаблоны для фоновой генерации слотов
func (r *RecurringTemplateRepository) GetAllActive(ctx context.Context) ([]*model.RecurringTemplate, error) {
	return r.list(ctx, `
		SELECT `+templateColumns+`
		FROM recurring_templates
		WHERE is_active = true
		ORDER BY owner_id, weekday, start_minute
	`)
}

// SetActive включает или выключает шаблон
func (r *RecurringTemplateRepository) SetActive(ctx context.Context, id int64, active bool) error {
	affected, err := r.ExecAffected(ctx, `
		UPDATE recurring_templates
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("set recurring template active: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "template", ID: id}
	}
	return nil
}

// Delete удаляет шаблон, слоты отвязываются через ON DELETE SET NULL
func (r *RecurringTemplateRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM recurring_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete recurring template: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "template", ID: id}
	}
	return nil
}
