package handlers

import (
	"net/http"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
)

func (h *Handler) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ranges             []model.TimeRange `json:"ranges" validate:"required,min=1,max=100"`
		ExcludeSlotIDs     []int64           `json:"excludeSlotIds"`
		ExcludeTemplateIDs []int64           `json:"excludeTemplateIds"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	reports, err := h.detector.Detect(r.Context(), ownerIDFrom(r), req.Ranges, service.DetectOptions{
		ExcludeSlotIDs:     req.ExcludeSlotIDs,
		ExcludeTemplateIDs: req.ExcludeTemplateIDs,
	})
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, "Conflicts detected", reports)
}

func (h *Handler) ResolveConflicts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy  service.Strategy `json:"strategy" validate:"required,oneof=suggest_alternatives auto_adjust force_override"`
		Conflicts []struct {
			ProposedRange      model.TimeRange `json:"proposedRange"`
			ConflictingSlotIDs []int64         `json:"conflictingSlotIds"`
			SlotID             *int64          `json:"slotId" validate:"omitempty,gt=0"`
			Subject            string          `json:"subject" validate:"max=255"`
		} `json:"conflicts" validate:"required,min=1,max=50,dive"`
		Preferences service.Preferences `json:"preferences"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ownerID := ownerIDFrom(r)
	conflicts := make([]service.Conflict, 0, len(req.Conflicts))
	for _, c := range req.Conflicts {
		conflicts = append(conflicts, service.Conflict{
			OwnerID:            ownerID,
			ProposedRange:      c.ProposedRange,
			ConflictingSlotIDs: c.ConflictingSlotIDs,
			SlotID:             c.SlotID,
			Subject:            c.Subject,
		})
	}

	result, err := h.resolver.Resolve(r.Context(), conflicts, req.Strategy, req.Preferences)
	if err != nil {
		h.errorResponse(w, r, err)
		return
	}

	h.successResponse(w, r, "Conflicts processed", result)
}
