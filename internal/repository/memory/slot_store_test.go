package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = model.NewDate(2026, time.October, 19)

func newSlot(t *testing.T, start, end model.WallClock) *model.Slot {
	t.Helper()
	slot, err := model.NewSlot(1, model.DatedRange(monday, start, end), "", model.SlotStatusAvailable)
	require.NoError(t, err)
	return slot
}

func TestCreateSlotsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore()

	created, err := s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 0), model.Clock(10, 0))}, true)
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 30), model.Clock(10, 30))}, true)
	var unavailable *model.SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, created[0].ID, unavailable.SlotID)

	// пересечение внутри одной пачки тоже отклоняется, и пачка не пишется целиком
	_, err = s.CreateSlots(ctx, []*model.Slot{
		newSlot(t, model.Clock(12, 0), model.Clock(13, 0)),
		newSlot(t, model.Clock(12, 30), model.Clock(13, 30)),
	}, true)
	require.ErrorAs(t, err, &unavailable)

	all, err := s.GetSlots(ctx, 1, monday, monday)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 30), model.Clock(10, 30))}, false)
	assert.NoError(t, err)
}

func TestCancelledSlotDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore()

	created, err := s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 0), model.Clock(10, 0))}, true)
	require.NoError(t, err)
	_, err = s.ApplyTransition(ctx, created[0].ID, model.Transition{Event: model.EventWithdraw, At: time.Now()})
	require.NoError(t, err)

	_, err = s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 0), model.Clock(10, 0))}, true)
	assert.NoError(t, err)
}

func TestApplyTransitionReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore()
	created, err := s.CreateSlots(ctx, []*model.Slot{newSlot(t, model.Clock(9, 0), model.Clock(10, 0))}, true)
	require.NoError(t, err)

	res, err := s.ApplyTransition(ctx, created[0].ID, model.Transition{Event: model.EventDirectBook, StudentID: 5, At: time.Now()})
	require.NoError(t, err)
	res.Slot.Status = model.SlotStatusCancelled

	stored, err := s.GetSlot(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, stored.Status)

	bookings, err := s.GetBookings(ctx, created[0].ID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, int64(5), bookings[0].StudentID)

	_, err = s.ApplyTransition(ctx, 999, model.Transition{Event: model.EventCancel})
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestDeleteTemplateUnlinksSlots(t *testing.T) {
	ctx := context.Background()
	s := NewSlotStore()
	tmpl := &model.RecurringTemplate{OwnerID: 1, DayOfWeek: time.Monday, StartTime: model.Clock(9, 0), EndTime: model.Clock(10, 0), IsActive: true}
	require.NoError(t, s.CreateTemplates(ctx, []*model.RecurringTemplate{tmpl}))

	slot := newSlot(t, model.Clock(9, 0), model.Clock(10, 0))
	slot.TemplateID = &tmpl.ID
	created, err := s.CreateSlots(ctx, []*model.Slot{slot}, true)
	require.NoError(t, err)

	byTemplate, err := s.GetSlotsByTemplate(ctx, tmpl.ID, monday)
	require.NoError(t, err)
	assert.Len(t, byTemplate, 1)

	require.NoError(t, s.DeleteTemplate(ctx, tmpl.ID))
	stored, err := s.GetSlot(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TemplateID)
}
