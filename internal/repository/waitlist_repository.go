package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const waitlistColumns = `id, requester_id, owner_id, bucket_key, weekday, desired_date, start_minute, end_minute,
	priority, status, created_at, expires_at, notified_at, fulfilled_at, notes`

// WaitlistRepository очередь ожидания в PostgreSQL.
// Уникальность (owner_id, bucket_key, priority) проверяется отложенным ограничением,
// поэтому обмен приоритетами и перенумерация выполняются внутри транзакции.
type WaitlistRepository struct {
	pool *pgxpool.Pool
	*base.Repository
}

func NewWaitlistRepository(pool *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool, Repository: base.NewRepository(pool)}
}

func scanEntry(row pgx.Row) (*model.WaitlistEntry, error) {
	var (
		e          model.WaitlistEntry
		weekday    *int16
		date       *time.Time
		start, end int32
	)
	err := row.Scan(
		&e.ID,
		&e.RequesterID,
		&e.OwnerID,
		&e.Bucket,
		&weekday,
		&date,
		&start,
		&end,
		&e.Priority,
		&e.Status,
		&e.CreatedAt,
		&e.ExpiresAt,
		&e.NotifiedAt,
		&e.FulfilledAt,
		&e.Notes,
	)
	if err != nil {
		return nil, err
	}
	e.DesiredRange = base.RangeFromColumns(weekday, date, start, end)
	return &e, nil
}

func queryEntries(ctx context.Context, db base.DBTX, query string, args ...any) ([]*model.WaitlistEntry, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getEntry(ctx context.Context, db base.DBTX, id int64, forUpdate bool) (*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return e, nil
}

// lockBucket блокирует активные записи очереди и возвращает их по возрастанию priority
func lockBucket(ctx context.Context, tx pgx.Tx, ownerID int64, bucket model.Bucket) ([]*model.WaitlistEntry, error) {
	return queryEntries(ctx, tx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE owner_id = $1 AND bucket_key = $2 AND status IN ('waiting', 'notified')
		ORDER BY priority
		FOR UPDATE
	`, ownerID, bucket)
}

func saveEntry(ctx context.Context, db base.DBTX, e *model.WaitlistEntry) error {
	_, err := db.Exec(ctx, `
		UPDATE waitlist_entries
		SET priority = $1, status = $2, expires_at = $3, notified_at = $4, fulfilled_at = $5, notes = $6
		WHERE id = $7
	`, e.Priority, e.Status, e.ExpiresAt, e.NotifiedAt, e.FulfilledAt, e.Notes, e.ID)
	if err != nil {
		return fmt.Errorf("save waitlist entry: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) GetEntries(ctx context.Context, ownerID int64, bucket model.Bucket, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	var filter []string
	for _, st := range statuses {
		filter = append(filter, string(st))
	}

	return queryEntries(ctx, r.DB(), `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE owner_id = $1
		  AND ($2 = '' OR bucket_key = $2)
		  AND ($3::text[] IS NULL OR status = ANY($3))
		ORDER BY bucket_key, priority
	`, ownerID, string(bucket), filter)
}

func (r *WaitlistRepository) GetEntry(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	return getEntry(ctx, r.DB(), id, false)
}

func (r *WaitlistRepository) Enqueue(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error) {
	err := base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Сериализуем постановку в очередь в пределах владельца
		if err := base.LockOwner(ctx, tx, entry.OwnerID); err != nil {
			return err
		}

		active, err := queryEntries(ctx, tx, `
			SELECT `+waitlistColumns+`
			FROM waitlist_entries
			WHERE owner_id = $1 AND requester_id = $2 AND status IN ('waiting', 'notified')
		`, entry.OwnerID, entry.RequesterID)
		if err != nil {
			return err
		}
		for _, e := range active {
			if e.OverlapsWith(entry) {
				return &model.AlreadyQueuedError{
					RequesterID:     entry.RequesterID,
					OwnerID:         entry.OwnerID,
					ExistingEntryID: e.ID,
				}
			}
		}

		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(priority) + 1, 0)
			FROM waitlist_entries
			WHERE owner_id = $1 AND bucket_key = $2
		`, entry.OwnerID, entry.Bucket).Scan(&entry.Priority)
		if err != nil {
			return fmt.Errorf("next waitlist priority: %w", err)
		}

		desired := entry.DesiredRange
		err = tx.QueryRow(ctx, `
			INSERT INTO waitlist_entries
				(requester_id, owner_id, bucket_key, weekday, desired_date, start_minute, end_minute, priority, status, created_at, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`,
			entry.RequesterID,
			entry.OwnerID,
			entry.Bucket,
			base.NullableWeekday(desired.DayOfWeek),
			base.NullableDate(desired.Date),
			int32(desired.StartTime),
			int32(desired.EndTime),
			entry.Priority,
			entry.Status,
			entry.CreatedAt,
			entry.Notes,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *WaitlistRepository) Update(ctx context.Context, id int64, fn func(*model.WaitlistEntry) error) (*model.WaitlistEntry, error) {
	var updated *model.WaitlistEntry
	err := base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := getEntry(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if e == nil {
			return &model.NotFoundError{Entity: "waitlist_entry", ID: id}
		}
		if err := fn(e); err != nil {
			return err
		}
		updated = e
		return saveEntry(ctx, tx, e)
	})
	return updated, err
}

func (r *WaitlistRepository) Remove(ctx context.Context, id int64) (*model.WaitlistEntry, error) {
	var removed *model.WaitlistEntry
	err := base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := getEntry(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if e == nil {
			return &model.NotFoundError{Entity: "waitlist_entry", ID: id}
		}
		if err := e.CheckRemovable(); err != nil {
			return err
		}
		removed = e
		_, err = tx.Exec(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id)
		return err
	})
	return removed, err
}

func (r *WaitlistRepository) SwapAdjacent(ctx context.Context, id int64, towardFront bool) (*model.WaitlistEntry, error) {
	var moved *model.WaitlistEntry
	err := base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		e, err := getEntry(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if e == nil {
			return &model.NotFoundError{Entity: "waitlist_entry", ID: id}
		}
		if e.Status.IsTerminal() {
			return &model.InvalidTransitionError{Entity: "waitlist_entry", ID: id, CurrentState: string(e.Status), Event: "reorder"}
		}

		line, err := lockBucket(ctx, tx, e.OwnerID, e.Bucket)
		if err != nil {
			return err
		}
		pos := slices.IndexFunc(line, func(o *model.WaitlistEntry) bool { return o.ID == id })
		if pos < 0 {
			// Статус изменился между чтением и блокировкой
			return &model.InvalidTransitionError{Entity: "waitlist_entry", ID: id, CurrentState: string(e.Status), Event: "reorder"}
		}

		neighbour, direction := pos+1, "back"
		if towardFront {
			neighbour, direction = pos-1, "front"
		}
		if neighbour < 0 || neighbour >= len(line) {
			return &model.NoAdjacentEntryError{EntryID: id, Direction: direction}
		}

		current, other := line[pos], line[neighbour]
		current.Priority, other.Priority = other.Priority, current.Priority
		if err := saveEntry(ctx, tx, current); err != nil {
			return err
		}
		if err := saveEntry(ctx, tx, other); err != nil {
			return err
		}
		moved = current
		return nil
	})
	return moved, err
}

func (r *WaitlistRepository) NotifyHead(ctx context.Context, ownerID int64, bucket model.Bucket, now time.Time, ttl time.Duration) (*model.WaitlistEntry, error) {
	var head *model.WaitlistEntry
	err := base.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		line, err := lockBucket(ctx, tx, ownerID, bucket)
		if err != nil {
			return err
		}

		for _, e := range line {
			if e.Status == model.WaitlistStatusNotified {
				return nil
			}
		}
		if len(line) == 0 {
			return nil
		}

		if err := line[0].MarkNotified(now, ttl); err != nil {
			return err
		}
		head = line[0]
		return saveEntry(ctx, tx, head)
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

// Expire условное обновление: выигрывает только один из параллельных вызовов
func (r *WaitlistRepository) Expire(ctx context.Context, id int64, now time.Time) (*model.WaitlistEntry, bool, error) {
	e, err := scanEntry(r.DB().QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired'
		WHERE id = $1 AND status = 'notified' AND expires_at < $2
		RETURNING `+waitlistColumns, id, now))
	if err == nil {
		return e, true, nil
	}
	if !base.IsNotFound(err) {
		return nil, false, fmt.Errorf("expire waitlist entry: %w", err)
	}

	current, err := r.GetEntry(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *WaitlistRepository) GetExpired(ctx context.Context, now time.Time) ([]*model.WaitlistEntry, error) {
	return queryEntries(ctx, r.DB(), `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE status = 'notified' AND expires_at < $1
		ORDER BY expires_at, id
	`, now)
}

// Renumber одним запросом переписывает priority очереди в 0..n-1
func (r *WaitlistRepository) Renumber(ctx context.Context, ownerID int64, bucket model.Bucket) error {
	_, err := r.DB().Exec(ctx, `
		UPDATE waitlist_entries w
		SET priority = ranked.position - 1
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY priority, id) AS position
			FROM waitlist_entries
			WHERE owner_id = $1 AND bucket_key = $2
		) ranked
		WHERE w.id = ranked.id
	`, ownerID, bucket)
	if err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}
	return nil
}
