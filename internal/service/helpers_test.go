package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ownerID int64 = 7

// Пятница; ближайший понедельник - 19 октября
var (
	startOfTest = time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)
	monday      = model.NewDate(2026, time.October, 19)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotification struct {
	requesterID int64
	message     string
	expiresAt   *time.Time
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, requesterID int64, message string, expiresAt *time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{requesterID: requesterID, message: message, expiresAt: expiresAt})
	return nil
}

func (n *recordingNotifier) recipients() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int64, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.requesterID)
	}
	return out
}

type fixture struct {
	ctx       context.Context
	clock     *fakeClock
	notifier  *recordingNotifier
	slotStore *memory.SlotStore
	queue     *memory.WaitlistStore
	detector  *ConflictDetector
	slots     *SlotService
	recurring *RecurringService
	resolver  *ConflictResolver
	waitlist  *WaitlistService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	clock := &fakeClock{now: startOfTest}
	notifier := &recordingNotifier{}
	slotStore := memory.NewSlotStore()
	queue := memory.NewWaitlistStore()

	detector := NewConflictDetector(slotStore, clock, 8, logger)
	waitlist := NewWaitlistService(queue, notifier, clock, 2*time.Hour, logger)

	return &fixture{
		ctx:       context.Background(),
		clock:     clock,
		notifier:  notifier,
		slotStore: slotStore,
		queue:     queue,
		detector:  detector,
		slots:     NewSlotService(slotStore, detector, notifier, waitlist, clock, 24*time.Hour, logger),
		recurring: NewRecurringService(slotStore, detector, notifier, clock, logger),
		resolver:  NewConflictResolver(slotStore, detector, logger),
		waitlist:  waitlist,
	}
}

func (f *fixture) createSlot(t *testing.T, date model.CalendarDate, start, end model.WallClock) *model.Slot {
	t.Helper()
	slot, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(date, start, end),
		Subject: "Math",
	})
	require.NoError(t, err)
	return slot
}

func (f *fixture) enqueue(t *testing.T, requesterID int64, r model.TimeRange) *model.WaitlistEntry {
	t.Helper()
	entry, err := f.waitlist.Enqueue(f.ctx, EnqueueRequest{RequesterID: requesterID, OwnerID: ownerID, DesiredRange: r})
	require.NoError(t, err)
	return entry
}

func entryIDs(entries []*model.WaitlistEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
