package lock

import (
	"context"
	"time"
)

// Locker взаимное исключение фоновых задач между экземплярами сервиса
type Locker interface {
	// TryLock не ждёт: false, если блокировка уже занята. Возвращает значение-владельца для Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	// Unlock снимает блокировку, только если ею всё ещё владеет value
	Unlock(ctx context.Context, key, value string) error
}
