package base

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX общий интерфейс пула соединений и транзакции
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository базовый репозиторий с общими методами
type Repository struct {
	db DBTX
}

// NewRepository создаёт новый базовый репозиторий
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// DB возвращает пул или транзакцию, с которой работает репозиторий
func (r *Repository) DB() DBTX {
	return r.db
}

// ExecAffected выполняет команду и возвращает количество затронутых строк
func (r *Repository) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InTx выполняет fn в транзакции: commit при успехе, rollback при ошибке
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockOwner берёт транзакционную advisory-блокировку на расписание владельца
func LockOwner(ctx context.Context, tx pgx.Tx, ownerID int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return fmt.Errorf("lock owner schedule: %w", err)
	}
	return nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// DateArg дата для параметра типа DATE
func DateArg(d model.CalendarDate) time.Time {
	return d.Time(time.UTC)
}

// NullableDate параметр DATE, который может быть NULL
func NullableDate(d *model.CalendarDate) *time.Time {
	if d == nil {
		return nil
	}
	t := DateArg(*d)
	return &t
}

// NullableWeekday параметр SMALLINT для дня недели, который может быть NULL
func NullableWeekday(w *time.Weekday) *int16 {
	if w == nil {
		return nil
	}
	v := int16(*w)
	return &v
}

// RangeFromColumns собирает TimeRange из колонок weekday/date/start_minute/end_minute
func RangeFromColumns(weekday *int16, date *time.Time, start, end int32) model.TimeRange {
	r := model.TimeRange{StartTime: model.WallClock(start), EndTime: model.WallClock(end)}
	if date != nil {
		d := model.DateOf(*date)
		r.Date = &d
	} else if weekday != nil {
		w := time.Weekday(*weekday)
		r.DayOfWeek = &w
	}
	return r
}
