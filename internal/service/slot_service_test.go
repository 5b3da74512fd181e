package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSlotRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	existing := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	_, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(monday, model.Clock(9, 30), model.Clock(10, 30)),
	})
	var unavailable *model.SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.NotNil(t, unavailable.Conflicts)
	assert.Equal(t, []int64{existing.ID}, unavailable.Conflicts.ConflictingSlotIDs())

	// касание концами не пересечение
	touching := f.createSlot(t, monday, model.Clock(10, 0), model.Clock(11, 0))
	assert.Equal(t, model.SlotStatusAvailable, touching.Status)

	forced, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(monday, model.Clock(9, 30), model.Clock(10, 30)),
		Force:   true,
	})
	require.NoError(t, err)
	assert.NotZero(t, forced.ID)
}

func TestCreateSlotRequiresDatedRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.WeeklyRange(time.Monday, model.Clock(9, 0), model.Clock(10, 0)),
	})
	assert.Equal(t, model.KindInvalidRange, model.KindOf(err))
}

func TestCreateSlotConflictsWithBlockedPeriod(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slots.CreateBlockedPeriod(f.ctx, &model.BlockedPeriod{
		OwnerID: ownerID,
		Range:   model.WeeklyRange(time.Monday, model.Clock(12, 0), model.Clock(13, 0)),
		Reason:  "lunch",
	}))

	_, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(monday, model.Clock(12, 30), model.Clock(13, 30)),
	})
	var unavailable *model.SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Len(t, unavailable.Conflicts.BlockedSlotConflicts, 1)
	assert.Equal(t, model.SeverityLow, unavailable.Conflicts.Severity())
}

func TestBookSlotOnlyOneWinner(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	const students = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		losers  int
	)
	for i := 1; i <= students; i++ {
		wg.Add(1)
		go func(student int64) {
			defer wg.Done()
			_, err := f.slots.BookSlot(f.ctx, slot.ID, student)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, student)
				return
			}
			if model.KindOf(err) == model.KindSlotUnavailable {
				losers++
			}
		}(int64(i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, students-1, losers)

	booked, err := f.slots.GetSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, booked.Status)
	assert.Equal(t, winners[0], *booked.BookedBy)

	bookings, err := f.slots.GetSlotBookings(f.ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, model.BookingStatusConfirmed, bookings[0].Status)
}

func TestAssignConfirmOnlyByAssignedStudent(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	assigned, err := f.slots.AssignSlot(f.ctx, slot.ID, 100, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignmentExpiry)
	assert.Equal(t, startOfTest.Add(time.Hour), *assigned.AssignmentExpiry)
	assert.Equal(t, []int64{100}, f.notifier.recipients())

	_, err = f.slots.BookSlot(f.ctx, slot.ID, 101)
	assert.Equal(t, model.KindSlotUnavailable, model.KindOf(err))

	booked, err := f.slots.BookSlot(f.ctx, slot.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, booked.Status)
	assert.Nil(t, booked.AssignedStudentID)
	assert.Nil(t, booked.AssignmentExpiry)
}

func TestExpireAssignmentsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
	_, err := f.slots.AssignSlot(f.ctx, slot.ID, 100, 0)
	require.NoError(t, err)

	expired, err := f.slots.ExpireAssignments(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, expired, "assignment is still valid")

	f.clock.Advance(25 * time.Hour)
	expired, err = f.slots.ExpireAssignments(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	again, err := f.slots.ExpireAssignments(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	released, err := f.slots.GetSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusAvailable, released.Status)
	assert.Nil(t, released.AssignedStudentID)
	assert.Equal(t, []int64{100, 100}, f.notifier.recipients(), "offer and expiry notices")
}

func TestIllegalTransitionLeavesSlotUnchanged(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	_, err := f.slots.CompleteSlot(f.ctx, slot.ID)
	var transitionErr *model.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "available", transitionErr.CurrentState)
	assert.Equal(t, "complete", transitionErr.Event)

	unchanged, err := f.slots.GetSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusAvailable, unchanged.Status)
}

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	_, err := f.slots.BookSlot(f.ctx, slot.ID, 100)
	require.NoError(t, err)
	cancelled, err := f.slots.CancelSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusAvailable, cancelled.Status)
	assert.Nil(t, cancelled.BookedBy)

	_, err = f.slots.BookSlot(f.ctx, slot.ID, 200)
	require.NoError(t, err)
	completed, err := f.slots.CompleteSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCompleted, completed.Status)

	bookings, err := f.slots.GetSlotBookings(f.ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, model.BookingStatusCanceled, bookings[0].Status)
	assert.Equal(t, model.BookingStatusCompleted, bookings[1].Status)
}

func TestWithdrawnSlotFreesTime(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	withdrawn, err := f.slots.WithdrawSlot(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCancelled, withdrawn.Status)

	f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
}

func TestDeleteSlot(t *testing.T) {
	f := newFixture(t)

	booked := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
	_, err := f.slots.BookSlot(f.ctx, booked.ID, 100)
	require.NoError(t, err)

	err = f.slots.DeleteSlot(f.ctx, booked.ID, false)
	assert.Equal(t, model.KindInvalidTransition, model.KindOf(err))

	require.NoError(t, f.slots.DeleteSlot(f.ctx, booked.ID, true))
	assert.Equal(t, []int64{100}, f.notifier.recipients())

	_, err = f.slots.GetSlot(f.ctx, booked.ID)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	// отменённая бронь остаётся в истории и блокирует удаление без force
	withHistory := f.createSlot(t, monday, model.Clock(11, 0), model.Clock(12, 0))
	_, err = f.slots.BookSlot(f.ctx, withHistory.ID, 100)
	require.NoError(t, err)
	_, err = f.slots.CancelSlot(f.ctx, withHistory.ID)
	require.NoError(t, err)

	err = f.slots.DeleteSlot(f.ctx, withHistory.ID, false)
	var depErr *model.HasDependentsError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, 1, depErr.Dependents)

	free := f.createSlot(t, monday, model.Clock(13, 0), model.Clock(14, 0))
	assert.NoError(t, f.slots.DeleteSlot(f.ctx, free.ID, false))
}

func TestDeleteSlotKeepsTerminalSlots(t *testing.T) {
	f := newFixture(t)

	withdrawn := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))
	_, err := f.slots.WithdrawSlot(f.ctx, withdrawn.ID)
	require.NoError(t, err)

	completed := f.createSlot(t, monday, model.Clock(11, 0), model.Clock(12, 0))
	_, err = f.slots.BookSlot(f.ctx, completed.ID, 100)
	require.NoError(t, err)
	_, err = f.slots.CompleteSlot(f.ctx, completed.ID)
	require.NoError(t, err)

	for _, id := range []int64{withdrawn.ID, completed.ID} {
		for _, force := range []bool{false, true} {
			err := f.slots.DeleteSlot(f.ctx, id, force)
			assert.Equal(t, model.KindInvalidTransition, model.KindOf(err), "slot %d force=%v", id, force)
		}
		kept, err := f.slots.GetSlot(f.ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	}
}

func TestBookSlotInWrongState(t *testing.T) {
	f := newFixture(t)

	unavailable, err := f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(monday, model.Clock(9, 0), model.Clock(10, 0)),
		Status:  model.SlotStatusUnavailable,
	})
	require.NoError(t, err)
	_, err = f.slots.BookSlot(f.ctx, unavailable.ID, 100)
	var transitionErr *model.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "unavailable", transitionErr.CurrentState)

	withdrawn := f.createSlot(t, monday, model.Clock(11, 0), model.Clock(12, 0))
	_, err = f.slots.WithdrawSlot(f.ctx, withdrawn.ID)
	require.NoError(t, err)
	_, err = f.slots.BookSlot(f.ctx, withdrawn.ID, 100)
	assert.Equal(t, model.KindInvalidTransition, model.KindOf(err))

	booked := f.createSlot(t, monday, model.Clock(13, 0), model.Clock(14, 0))
	_, err = f.slots.BookSlot(f.ctx, booked.ID, 100)
	require.NoError(t, err)
	_, err = f.slots.BookSlot(f.ctx, booked.ID, 200)
	assert.Equal(t, model.KindSlotUnavailable, model.KindOf(err))
}

func TestCreatedSlotDoesNotConflictWithItself(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, monday, model.Clock(9, 0), model.Clock(10, 0))

	reports, err := f.detector.Detect(f.ctx, ownerID, []model.TimeRange{slot.Range}, DetectOptions{ExcludeSlotIDs: []int64{slot.ID}})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].HasConflicts())

	reports, err = f.detector.Detect(f.ctx, ownerID, []model.TimeRange{slot.Range}, DetectOptions{})
	require.NoError(t, err)
	assert.Len(t, reports[0].ScheduleSlotConflicts, 1)
}
