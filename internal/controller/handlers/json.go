package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Виды ошибок HTTP-слоя, дополняющие model.ErrorKind
const (
	kindBadRequest model.ErrorKind = "BAD_REQUEST"
	kindValidation model.ErrorKind = "VALIDATION"
	kindInternal   model.ErrorKind = "INTERNAL"
)

type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind   model.ErrorKind `json:"kind"`
	Fields map[string]any  `json:"fields,omitempty"`
}

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// decode читает и валидирует тело запроса. false - ответ с ошибкой уже отправлен.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := h.readJSON(w, r, v); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{Success: true, Message: msg, Data: data})
}

func (h *Handler) createdResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusCreated, Response{Success: true, Message: msg, Data: data})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]any, len(validationErrors))
		for _, fe := range validationErrors {
			fields[fe.Field()] = fe.Translate(h.translator)
		}
		h.writeJSON(w, r, http.StatusBadRequest, Response{
			Message: validationErrors[0].Translate(h.translator),
			Error:   &ErrorBody{Kind: kindValidation, Fields: fields},
		})
		return
	}

	h.writeJSON(w, r, http.StatusBadRequest, Response{
		Message: err.Error(),
		Error:   &ErrorBody{Kind: kindBadRequest},
	})
}

// errorResponse отображает структурированные ошибки планировщика на HTTP-статусы
func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var kinded model.KindedError
	if !errors.As(err, &kinded) {
		h.logger.Error("Internal server error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSON(w, r, http.StatusInternalServerError, Response{
			Message: "internal server error",
			Error:   &ErrorBody{Kind: kindInternal},
		})
		return
	}

	h.writeJSON(w, r, statusFor(kinded.Kind()), Response{
		Message: kinded.Error(),
		Error:   &ErrorBody{Kind: kinded.Kind(), Fields: kinded.Fields()},
	})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidRange:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindNoResolutionFound:
		return http.StatusUnprocessableEntity
	case model.KindInvalidTransition,
		model.KindHasDependents,
		model.KindRecurringConflicts,
		model.KindAlreadyQueued,
		model.KindNoAdjacentEntry,
		model.KindSlotUnavailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
