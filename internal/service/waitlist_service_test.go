package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitlistFIFOAndPromote(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())
	b := f.enqueue(t, 2, nineToTen())
	c := f.enqueue(t, 3, nineToTen())
	assert.Equal(t, []int{0, 1, 2}, []int{a.Priority, b.Priority, c.Priority})

	_, err := f.waitlist.Promote(f.ctx, c.ID)
	require.NoError(t, err)

	line, err := f.waitlist.List(f.ctx, ownerID, a.Bucket, model.ActiveWaitlistStatuses)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, c.ID, b.ID}, entryIDs(line))

	_, err = f.waitlist.Promote(f.ctx, a.ID)
	var noAdj *model.NoAdjacentEntryError
	require.ErrorAs(t, err, &noAdj)
	assert.Equal(t, "front", noAdj.Direction)

	_, err = f.waitlist.Demote(f.ctx, b.ID)
	require.ErrorAs(t, err, &noAdj)
	assert.Equal(t, "back", noAdj.Direction)
}

func TestWaitlistRejectsDuplicateRequest(t *testing.T) {
	f := newFixture(t)
	first := f.enqueue(t, 1, nineToTen())

	_, err := f.waitlist.Enqueue(f.ctx, EnqueueRequest{
		RequesterID:  1,
		OwnerID:      ownerID,
		DesiredRange: model.DatedRange(monday, model.Clock(9, 30), model.Clock(10, 30)),
	})
	var queued *model.AlreadyQueuedError
	require.ErrorAs(t, err, &queued)
	assert.Equal(t, first.ID, queued.ExistingEntryID)

	// другое время и другой студент проходят
	f.enqueue(t, 1, model.DatedRange(monday, model.Clock(10, 0), model.Clock(11, 0)))
	f.enqueue(t, 2, nineToTen())
}

func TestSlotReleaseNotifiesHead(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
	_, err := f.slots.BookSlot(f.ctx, slot.ID, 50)
	require.NoError(t, err)

	a := f.enqueue(t, 1, nineToTen())
	b := f.enqueue(t, 2, nineToTen())
	other := f.enqueue(t, 3, model.DatedRange(monday, model.Clock(15, 0), model.Clock(16, 0)))

	_, err = f.slots.CancelSlot(f.ctx, slot.ID)
	require.NoError(t, err)

	head, err := f.waitlist.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusNotified, head.Status)
	require.NotNil(t, head.ExpiresAt)
	assert.Equal(t, startOfTest.Add(2*time.Hour), *head.ExpiresAt)

	for _, id := range []int64{b.ID, other.ID} {
		e, err := f.waitlist.Get(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusWaiting, e.Status)
	}
	assert.Equal(t, []int64{1}, f.notifier.recipients())
}

func TestExpireSweepCascades(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())
	b := f.enqueue(t, 2, nineToTen())
	c := f.enqueue(t, 3, nineToTen())

	_, err := f.waitlist.Notify(f.ctx, a.ID, 0, "")
	require.NoError(t, err)

	result, err := f.waitlist.ExpireSweep(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Expired, "notification has not lapsed yet")

	f.clock.Advance(3 * time.Hour)
	result, err = f.waitlist.ExpireSweep(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, result.Expired)
	assert.Equal(t, []int64{b.ID}, result.Notified)

	repeat, err := f.waitlist.ExpireSweep(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, repeat.Expired)
	assert.Empty(t, repeat.Notified)

	f.clock.Advance(3 * time.Hour)
	result, err = f.waitlist.ExpireSweep(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, result.Expired)
	assert.Equal(t, []int64{c.ID}, result.Notified)

	expired, err := f.waitlist.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusExpired, expired.Status)
	assert.Equal(t, []int64{1, 2, 3}, f.notifier.recipients())
}

func TestConcurrentSweepsExpireOnce(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())
	f.enqueue(t, 2, nineToTen())
	_, err := f.waitlist.Notify(f.ctx, a.ID, time.Minute, "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		expired  []int64
		notified []int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.waitlist.ExpireSweep(f.ctx, f.clock.Now())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			expired = append(expired, res.Expired...)
			notified = append(notified, res.Notified...)
		}()
	}
	wg.Wait()

	assert.Len(t, expired, 1)
	assert.Len(t, notified, 1)
}

func TestWaitlistTerminalStates(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())

	_, err := f.waitlist.Fulfill(f.ctx, a.ID)
	assert.Equal(t, model.KindInvalidTransition, model.KindOf(err), "only notified entries can be fulfilled")

	_, err = f.waitlist.Notify(f.ctx, a.ID, 0, "Освободилось время")
	require.NoError(t, err)
	fulfilled, err := f.waitlist.Fulfill(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusFulfilled, fulfilled.Status)

	_, err = f.waitlist.Notify(f.ctx, a.ID, 0, "")
	assert.Equal(t, model.KindInvalidTransition, model.KindOf(err))
	assert.Equal(t, model.KindInvalidTransition, model.KindOf(f.waitlist.Remove(f.ctx, a.ID)))

	b := f.enqueue(t, 2, nineToTen())
	require.NoError(t, f.waitlist.Remove(f.ctx, b.ID))
	_, err = f.waitlist.Get(f.ctx, b.ID)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestEstimateWait(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())
	b := f.enqueue(t, 2, nineToTen())
	c := f.enqueue(t, 3, nineToTen())
	d := f.enqueue(t, 4, nineToTen())

	noHistory, err := f.waitlist.EstimateWait(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, noHistory.Position)
	assert.Nil(t, noHistory.EstimatedWait)

	for _, id := range []int64{a.ID, b.ID} {
		_, err := f.waitlist.Notify(f.ctx, id, 0, "")
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		_, err = f.waitlist.Fulfill(f.ctx, id)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
	}

	first, err := f.waitlist.EstimateWait(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, first.SampleSize)
	require.NotNil(t, first.EstimatedMinute)
	assert.Equal(t, 120, *first.EstimatedMinute)

	second, err := f.waitlist.EstimateWait(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, 240, *second.EstimatedMinute)
}

func TestRenumberCompactsPriorities(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, 1, nineToTen())
	b := f.enqueue(t, 2, nineToTen())
	c := f.enqueue(t, 3, nineToTen())
	require.NoError(t, f.waitlist.Remove(f.ctx, b.ID))

	require.NoError(t, f.waitlist.Renumber(f.ctx, ownerID, a.Bucket))

	line, err := f.waitlist.List(f.ctx, ownerID, a.Bucket, nil)
	require.NoError(t, err)
	require.Len(t, line, 2)
	assert.Equal(t, []int64{a.ID, c.ID}, entryIDs(line))
	assert.Equal(t, 0, line[0].Priority)
	assert.Equal(t, 1, line[1].Priority)
}

// Преподаватель отменяет бронь, первый в очереди получает уведомление и бронирует слот
func TestCancellationHandsSlotToWaitlist(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
	_, err := f.slots.BookSlot(f.ctx, slot.ID, 10)
	require.NoError(t, err)

	_, err = f.slots.CreateSlot(f.ctx, CreateSlotRequest{OwnerID: ownerID, Range: nineToTen()})
	var unavailable *model.SlotUnavailableError
	require.ErrorAs(t, err, &unavailable, "student 20 learns the time is taken")
	require.NotNil(t, unavailable.Conflicts)
	require.Len(t, unavailable.Conflicts.ScheduleSlotConflicts, 1)
	assert.Equal(t, slot.ID, unavailable.Conflicts.ScheduleSlotConflicts[0].ID)
	entry := f.enqueue(t, 20, unavailable.Range)

	_, err = f.slots.CancelSlot(f.ctx, slot.ID)
	require.NoError(t, err)

	notified, err := f.waitlist.Get(f.ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, model.WaitlistStatusNotified, notified.Status)
	require.NotNil(t, notified.ExpiresAt)
	assert.True(t, notified.ExpiresAt.After(f.clock.Now()))

	booked, err := f.slots.BookSlot(f.ctx, slot.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), *booked.BookedBy)

	fulfilled, err := f.waitlist.Fulfill(f.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusFulfilled, fulfilled.Status)
	assert.Equal(t, []int64{20}, f.notifier.recipients())
}
