package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	bucket := model.Bucket(r.URL.Query().Get("bucket"))

	var statuses []model.WaitlistStatus
	if v := r.URL.Query().Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := model.WaitlistStatus(strings.TrimSpace(s))
			switch status {
			case model.WaitlistStatusWaiting, model.WaitlistStatusNotified, model.WaitlistStatusExpired, model.WaitlistStatusFulfilled:
				statuses = append(statuses, status)
			default:
				h.badRequest(w, r, fmt.Errorf("unknown waitlist status %q", status))
				return
			}
		}
	}

	entries, err := h.waitlistService.List(r.Context(), ownerIDFrom(r), bucket, statuses)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist fetched", entries)
}

func (h *Handler) EnqueueWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequesterID  int64           `json:"requesterId" validate:"required,gt=0"`
		DesiredRange model.TimeRange `json:"desiredRange"`
		Notes        string          `json:"notes" validate:"max=500"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.waitlistService.Enqueue(r.Context(), service.EnqueueRequest{
		RequesterID:  req.RequesterID,
		OwnerID:      ownerIDFrom(r),
		DesiredRange: req.DesiredRange,
		Notes:        req.Notes,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.createdResponse(w, r, "Added to waitlist", entry)
}

func (h *Handler) RenumberWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket model.Bucket `json:"bucket" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.waitlistService.Renumber(r.Context(), ownerIDFrom(r), req.Bucket); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist renumbered", nil)
}

func (h *Handler) GetWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlistService.Get(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist entry fetched", entry)
}

func (h *Handler) RemoveWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.waitlistService.Remove(r.Context(), idFrom(r)); err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist entry removed", nil)
}

func (h *Handler) PromoteWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlistService.Promote(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist entry promoted", entry)
}

func (h *Handler) DemoteWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlistService.Demote(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist entry demoted", entry)
}

func (h *Handler) NotifyWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TTLMinutes int    `json:"ttlMinutes" validate:"gte=0"`
		Message    string `json:"message" validate:"max=1000"`
	}
	// Тело необязательно: без него срок и текст по умолчанию
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	entry, err := h.waitlistService.Notify(r.Context(), idFrom(r), time.Duration(req.TTLMinutes)*time.Minute, req.Message)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Requester notified", entry)
}

func (h *Handler) FulfillWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlistService.Fulfill(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist entry fulfilled", entry)
}

func (h *Handler) EstimateWait(w http.ResponseWriter, r *http.Request) {
	estimate, err := h.waitlistService.EstimateWait(r.Context(), idFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Wait estimated", estimate)
}

func (h *Handler) SweepWaitlist(w http.ResponseWriter, r *http.Request) {
	result, err := h.waitlistService.ExpireSweep(r.Context(), h.clock.Now())
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Waitlist swept", result)
}
