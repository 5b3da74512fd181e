package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
)

// WaitlistStore очередь ожидания в памяти
type WaitlistStore struct {
	mu      sync.RWMutex
	entries map[int64]*model.WaitlistEntry
	nextID  int64
}

func NewWaitlistStore() *WaitlistStore {
	return &WaitlistStore{entries: make(map[int64]*model.WaitlistEntry)}
}

func (s *WaitlistStore) GetEntries(_ context.Context, ownerID int64, bucket model.Bucket, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.bucketEntries(ownerID, bucket, statuses)
	for i, e := range out {
		out[i] = e.Clone()
	}
	return out, nil
}

func (s *WaitlistStore) GetEntry(_ context.Context, id int64) (*model.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (s *WaitlistStore) Enqueue(_ context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.RequesterID == entry.RequesterID && !e.Status.IsTerminal() && e.OverlapsWith(entry) {
			return nil, &model.AlreadyQueuedError{
				RequesterID:     entry.RequesterID,
				OwnerID:         entry.OwnerID,
				ExistingEntryID: e.ID,
			}
		}
	}

	// priority считается по всем записям очереди, включая историю, чтобы не было совпадений
	priority := 0
	for _, e := range s.bucketEntries(entry.OwnerID, entry.Bucket, nil) {
		if e.Priority >= priority {
			priority = e.Priority + 1
		}
	}

	s.nextID++
	entry.ID = s.nextID
	entry.Priority = priority
	s.entries[entry.ID] = entry.Clone()
	return entry.Clone(), nil
}

func (s *WaitlistStore) Update(_ context.Context, id int64, fn func(*model.WaitlistEntry) error) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "waitlist_entry", ID: id}
	}
	updated := e.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	s.entries[id] = updated
	return updated.Clone(), nil
}

func (s *WaitlistStore) Remove(_ context.Context, id int64) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "waitlist_entry", ID: id}
	}
	if err := e.CheckRemovable(); err != nil {
		return nil, err
	}
	delete(s.entries, id)
	return e.Clone(), nil
}

func (s *WaitlistStore) SwapAdjacent(_ context.Context, id int64, towardFront bool) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "waitlist_entry", ID: id}
	}
	if e.Status.IsTerminal() {
		return nil, &model.InvalidTransitionError{Entity: "waitlist_entry", ID: id, CurrentState: string(e.Status), Event: "reorder"}
	}

	line := s.bucketEntries(e.OwnerID, e.Bucket, model.ActiveWaitlistStatuses)
	pos := slices.IndexFunc(line, func(o *model.WaitlistEntry) bool { return o.ID == id })

	neighbour := pos + 1
	direction := "back"
	if towardFront {
		neighbour = pos - 1
		direction = "front"
	}
	if neighbour < 0 || neighbour >= len(line) {
		return nil, &model.NoAdjacentEntryError{EntryID: id, Direction: direction}
	}

	other := line[neighbour]
	e.Priority, other.Priority = other.Priority, e.Priority
	return e.Clone(), nil
}

func (s *WaitlistStore) NotifyHead(_ context.Context, ownerID int64, bucket model.Bucket, now time.Time, ttl time.Duration) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.bucketEntries(ownerID, bucket, model.ActiveWaitlistStatuses)
	var head *model.WaitlistEntry
	for _, e := range line {
		if e.Status == model.WaitlistStatusNotified {
			return nil, nil
		}
		if head == nil {
			head = e
		}
	}
	if head == nil {
		return nil, nil
	}
	if err := head.MarkNotified(now, ttl); err != nil {
		return nil, err
	}
	return head.Clone(), nil
}

func (s *WaitlistStore) Expire(_ context.Context, id int64, now time.Time) (*model.WaitlistEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !e.Expire(now) {
		return e.Clone(), false, nil
	}
	return e.Clone(), true, nil
}

func (s *WaitlistStore) GetExpired(_ context.Context, now time.Time) ([]*model.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.WaitlistEntry
	for _, e := range s.entries {
		if e.NotificationLapsed(now) {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.WaitlistEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *WaitlistStore) Renumber(_ context.Context, ownerID int64, bucket model.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.bucketEntries(ownerID, bucket, nil) {
		e.Priority = i
	}
	return nil
}

// bucketEntries записи (не копии) по возрастанию priority; вызывать под мьютексом
func (s *WaitlistStore) bucketEntries(ownerID int64, bucket model.Bucket, statuses []model.WaitlistStatus) []*model.WaitlistEntry {
	var out []*model.WaitlistEntry
	for _, e := range s.entries {
		if e.OwnerID != ownerID || (bucket != "" && e.Bucket != bucket) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *model.WaitlistEntry) int {
		if a.Bucket != b.Bucket {
			return cmp.Compare(a.Bucket, b.Bucket)
		}
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}
