package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

const defaultListDays = 28

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	from := model.DateOf(h.clock.Now())
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		from = d
	}
	to := from.AddDays(defaultListDays - 1)
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		to = d
	}

	slots, err := h.slotService.ListSlots(r.Context(), ownerIDFrom(r), from, to)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, "Slots fetched", slots)
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Range   model.TimeRange  `json:"range"`
		Subject string           `json:"subject" validate:"max=255"`
		Status  model.SlotStatus `json:"status" validate:"omitempty,oneof=available unavailable"`
		Force   bool             `json:"force"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.slotService.CreateSlot(r.Context(), service.CreateSlotRequest{
		OwnerID: ownerIDFrom(r),
		Range:   req.Range,
		Subject: req.Subject,
		Status:  req.Status,
		Force:   req.Force,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.createdResponse(w, r, "Slot created", slot)
}

func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.slotService.GetSlot(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Slot fetched", slot)
}

func (h *Handler) GetSlotBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.slotService.GetSlotBookings(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Bookings fetched", bookings)
}

func (h *Handler) AssignSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID  int64 `json:"studentId" validate:"required,gt=0"`
		TTLMinutes int   `json:"ttlMinutes" validate:"gte=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.slotService.AssignSlot(r.Context(), idFrom(r), req.StudentID, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Slot assigned", slot)
}

func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID int64 `json:"studentId" validate:"required,gt=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.slotService.BookSlot(r.Context(), idFrom(r), req.StudentID)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Slot booked", slot)
}

// slotAction переход без тела запроса
func (h *Handler) slotAction(action func(context.Context, int64) (*model.Slot, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := action(r.Context(), idFrom(r))
		if err != nil {
			h.errorResponse(w, r, err)
			return
		}
		h.successResponse(w, r, msg, slot)
	}
}

func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.slotService.DeleteSlot(r.Context(), idFrom(r), force); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Slot deleted", nil)
}

func (h *Handler) CreateBlockedPeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Range  model.TimeRange `json:"range"`
		Reason string          `json:"reason" validate:"max=255"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	period := &model.BlockedPeriod{
		OwnerID: ownerIDFrom(r),
		Range:   req.Range,
		Reason:  req.Reason,
	}
	if err := h.slotService.CreateBlockedPeriod(r.Context(), period); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.createdResponse(w, r, "Blocked period created", period)
}

func forceParam(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("force")
	if v == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid force %q", v)
	}
	return force, nil
}
