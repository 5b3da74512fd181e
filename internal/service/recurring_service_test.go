package service

import (
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayAndWednesday() []TemplateSpec {
	return []TemplateSpec{
		{DayOfWeek: time.Monday, StartTime: model.Clock(9, 0), EndTime: model.Clock(10, 0), Subject: "Math"},
		{DayOfWeek: time.Wednesday, StartTime: model.Clock(14, 0), EndTime: model.Clock(15, 0), Subject: "Physics"},
	}
}

func TestExpandPreviewDoesNotWrite(t *testing.T) {
	f := newFixture(t)

	result, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:     ownerID,
		Templates:   mondayAndWednesday(),
		Weeks:       4,
		StartDate:   monday,
		PreviewOnly: true,
	})
	require.NoError(t, err)

	assert.True(t, result.Preview)
	assert.Equal(t, 8, result.TotalScheduleSlots)
	assert.Equal(t, 8, result.SlotsToCreate)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Occurrences, 2)
	assert.Equal(t, monday, result.Occurrences[0].Dates[0])
	assert.Equal(t, monday.AddDays(2), result.Occurrences[1].Dates[0])
	assert.Equal(t, monday.AddDays(21), result.Occurrences[0].Dates[3])

	slots, err := f.slotStore.GetSlots(f.ctx, ownerID, monday, monday.AddDays(60))
	require.NoError(t, err)
	assert.Empty(t, slots)
	templates, err := f.recurring.ListTemplates(f.ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestExpandCommitCreatesTemplatesAndOccurrences(t *testing.T) {
	f := newFixture(t)

	result, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:           ownerID,
		Templates:         mondayAndWednesday(),
		Weeks:             4,
		StartDate:         monday,
		CreateTemplates:   true,
		CreateOccurrences: true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.GroupID)
	require.Len(t, result.Templates, 2)
	assert.Equal(t, *result.GroupID, result.Templates[0].GroupID)
	assert.Equal(t, *result.GroupID, result.Templates[1].GroupID)
	require.Len(t, result.CreatedSlots, 8)
	for _, slot := range result.CreatedSlots {
		require.NotNil(t, slot.TemplateID)
		assert.Equal(t, model.SlotStatusAvailable, slot.Status)
	}

	// развёртка существующего шаблона не конфликтует с его же вхождениями
	again, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:           ownerID,
		Templates:         []TemplateSpec{{ID: result.Templates[0].ID}},
		Weeks:             6,
		StartDate:         monday,
		CreateOccurrences: true,
	})
	require.NoError(t, err)
	assert.Empty(t, again.Conflicts)
	assert.Len(t, again.Occurrences[0].Existing, 4)
	assert.Equal(t, 2, again.SlotsToCreate)
	assert.Len(t, again.CreatedSlots, 2)
}

func TestExpandTemplateBlocksManualSlot(t *testing.T) {
	f := newFixture(t)
	_, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:         ownerID,
		Templates:       mondayAndWednesday()[:1],
		Weeks:           1,
		StartDate:       monday,
		CreateTemplates: true,
	})
	require.NoError(t, err)

	_, err = f.slots.CreateSlot(f.ctx, CreateSlotRequest{
		OwnerID: ownerID,
		Range:   model.DatedRange(monday.AddDays(7), model.Clock(9, 30), model.Clock(10, 30)),
	})
	var unavailable *model.SlotUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Len(t, unavailable.Conflicts.TimeSlotConflicts, 1)
}

func TestExpandConflictsBlockCommitUnlessOverride(t *testing.T) {
	f := newFixture(t)
	manual := f.createSlot(t, monday.AddDays(7), model.Clock(9, 30), model.Clock(10, 30))

	req := ExpandRequest{
		OwnerID:           ownerID,
		Templates:         mondayAndWednesday()[:1],
		Weeks:             4,
		StartDate:         monday,
		CreateTemplates:   true,
		CreateOccurrences: true,
	}

	_, err := f.recurring.Expand(f.ctx, req)
	var conflictsErr *model.RecurringConflictsError
	require.ErrorAs(t, err, &conflictsErr)
	require.Len(t, conflictsErr.Conflicts, 1)
	assert.Equal(t, monday.AddDays(7), conflictsErr.Conflicts[0].Date)
	assert.Equal(t, []int64{manual.ID}, conflictsErr.Conflicts[0].Report.ConflictingSlotIDs())

	templates, err := f.recurring.ListTemplates(f.ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, templates, "failed commit writes nothing")

	req.Override = true
	result, err := f.recurring.Expand(f.ctx, req)
	require.NoError(t, err)
	assert.Len(t, result.CreatedSlots, 3)
	assert.Len(t, result.Conflicts, 1)
}

func TestExpandRejectsOverlappingTemplatesInBatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID: ownerID,
		Templates: []TemplateSpec{
			{DayOfWeek: time.Monday, StartTime: model.Clock(9, 0), EndTime: model.Clock(10, 0)},
			{DayOfWeek: time.Monday, StartTime: model.Clock(9, 30), EndTime: model.Clock(11, 0)},
		},
		Weeks:       2,
		PreviewOnly: true,
	})
	assert.Equal(t, model.KindInvalidRange, model.KindOf(err))

	_, err = f.recurring.Expand(f.ctx, ExpandRequest{OwnerID: ownerID, Templates: mondayAndWednesday(), Weeks: 0})
	assert.Equal(t, model.KindInvalidRange, model.KindOf(err))
}

func TestDeleteSeriesKeepsOccupiedOccurrences(t *testing.T) {
	f := newFixture(t)
	result, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:           ownerID,
		Templates:         mondayAndWednesday()[:1],
		Weeks:             4,
		StartDate:         monday,
		CreateTemplates:   true,
		CreateOccurrences: true,
	})
	require.NoError(t, err)
	templateID := result.Templates[0].ID
	booked := result.CreatedSlots[0]
	_, err = f.slots.BookSlot(f.ctx, booked.ID, 100)
	require.NoError(t, err)

	deleted, err := f.recurring.DeleteSeries(f.ctx, templateID, false)
	require.NoError(t, err)
	assert.Len(t, deleted.DeletedSlotIDs, 3)
	assert.Equal(t, []int64{booked.ID}, deleted.KeptSlotIDs)

	kept, err := f.slots.GetSlot(f.ctx, booked.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.TemplateID)
	assert.Equal(t, model.SlotStatusBooked, kept.Status)

	_, err = f.recurring.DeleteSeries(f.ctx, templateID, false)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.Empty(t, f.notifier.recipients())
}

func TestDeleteSeriesForceNotifiesStudents(t *testing.T) {
	f := newFixture(t)
	result, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:           ownerID,
		Templates:         mondayAndWednesday()[:1],
		Weeks:             2,
		StartDate:         monday,
		CreateTemplates:   true,
		CreateOccurrences: true,
	})
	require.NoError(t, err)
	_, err = f.slots.BookSlot(f.ctx, result.CreatedSlots[1].ID, 300)
	require.NoError(t, err)

	deleted, err := f.recurring.DeleteSeries(f.ctx, result.Templates[0].ID, true)
	require.NoError(t, err)
	assert.Len(t, deleted.DeletedSlotIDs, 2)
	assert.Empty(t, deleted.KeptSlotIDs)
	assert.Equal(t, []int64{300}, f.notifier.recipients())
}

func TestExtendActiveTemplatesSkipsInactive(t *testing.T) {
	f := newFixture(t)
	result, err := f.recurring.Expand(f.ctx, ExpandRequest{
		OwnerID:         ownerID,
		Templates:       mondayAndWednesday(),
		Weeks:           1,
		CreateTemplates: true,
	})
	require.NoError(t, err)

	_, err = f.recurring.SetTemplateActive(f.ctx, result.Templates[1].ID, false)
	require.NoError(t, err)

	created, err := f.recurring.ExtendActiveTemplates(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	// повторный запуск ничего не дублирует
	created, err = f.recurring.ExtendActiveTemplates(f.ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, created)
}
