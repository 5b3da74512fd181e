package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalLocker блокировка в пределах процесса, когда Redis не настроен
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localEntry
	now   func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]localEntry),
		now:   time.Now,
	}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[key]; ok && held.expiresAt.After(now) {
		return false, "", nil
	}

	value := uuid.NewString()
	l.locks[key] = localEntry{value: value, expiresAt: now.Add(ttl)}
	return true, value, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.locks[key]
	if !ok || held.value != value {
		return ErrNotOwner
	}
	delete(l.locks, key)
	return nil
}
