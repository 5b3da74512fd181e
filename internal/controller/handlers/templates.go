package handlers

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.recurringService.ListTemplates(r.Context(), ownerIDFrom(r))
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Templates fetched", templates)
}

// ExpandRecurring предпросмотр (previewOnly) или фиксация серии
func (h *Handler) ExpandRecurring(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Templates []struct {
			ID        int64           `json:"id" validate:"gte=0"`
			DayOfWeek int             `json:"dayOfWeek" validate:"gte=0,lte=6"`
			StartTime model.WallClock `json:"startTime"`
			EndTime   model.WallClock `json:"endTime"`
			Subject   string          `json:"subject" validate:"max=255"`
		} `json:"templates" validate:"required,min=1,max=20,dive"`
		Weeks             int                `json:"weeks" validate:"required,gte=1,lte=52"`
		StartDate         model.CalendarDate `json:"startDate"`
		CreateTemplates   bool               `json:"createTemplates"`
		CreateOccurrences bool               `json:"createOccurrences"`
		PreviewOnly       bool               `json:"previewOnly"`
		Override          bool               `json:"override"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	specs := make([]service.TemplateSpec, 0, len(req.Templates))
	for _, t := range req.Templates {
		specs = append(specs, service.TemplateSpec{
			ID:        t.ID,
			DayOfWeek: time.Weekday(t.DayOfWeek),
			StartTime: t.StartTime,
			EndTime:   t.EndTime,
			Subject:   t.Subject,
		})
	}

	result, err := h.recurringService.Expand(r.Context(), service.ExpandRequest{
		OwnerID:           ownerIDFrom(r),
		Templates:         specs,
		Weeks:             req.Weeks,
		StartDate:         req.StartDate,
		CreateTemplates:   req.CreateTemplates,
		CreateOccurrences: req.CreateOccurrences,
		PreviewOnly:       req.PreviewOnly,
		Override:          req.Override,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	if result.Preview {
		h.successResponse(w, r, "Recurring preview built", result)
		return
	}
	h.createdResponse(w, r, "Recurring schedule created", result)
}

func (h *Handler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.recurringService.DeleteSeries(r.Context(), idFrom(r), force)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}
	h.successResponse(w, r, "Recurring series deleted", result)
}

func (h *Handler) setTemplateActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		template, err := h.recurringService.SetTemplateActive(r.Context(), idFrom(r), active)
		if err != nil {
			h.errorResponse(w, r, err)
			return
		}
		h.successResponse(w, r, "Template updated", template)
	}
}
