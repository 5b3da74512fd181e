package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/model"
	"github.com/Freeeeeet/tutor_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	mu         sync.Mutex
	recipients []int64
}

func (n *recordingNotifier) Notify(_ context.Context, requesterID int64, _ string, _ *time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, requesterID)
	return nil
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func newTestHandler(t *testing.T, opts Options) (*Handler, *recordingNotifier) {
	t.Helper()

	logger := zap.NewNop()
	clock := fixedClock{now: time.Date(2026, time.October, 16, 10, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	slotStore := memory.NewSlotStore()

	detector := service.NewConflictDetector(slotStore, clock, 4, logger)
	waitlist := service.NewWaitlistService(memory.NewWaitlistStore(), notifier, clock, 2*time.Hour, logger)
	slots := service.NewSlotService(slotStore, detector, notifier, waitlist, clock, 24*time.Hour, logger)
	recurring := service.NewRecurringService(slotStore, detector, notifier, clock, logger)
	resolver := service.NewConflictResolver(slotStore, detector, logger)

	h, err := NewHandler(slots, recurring, waitlist, detector, resolver, clock, logger)
	require.NoError(t, err)
	h.RegisterRoutes(opts)
	return h, notifier
}

func do(t *testing.T, h *Handler, method, path, body string) (int, testResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var resp testResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

const mondayNine = `{"date":"2026-10-19","startTime":"09:00","endTime":"10:00"}`

func TestSlotLifecycleOverHTTP(t *testing.T) {
	h, notifier := newTestHandler(t, Options{})

	code, resp := do(t, h, http.MethodPost, "/owners/7/slots", `{"range":`+mondayNine+`,"subject":"Math"}`)
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var slot model.Slot
	require.NoError(t, json.Unmarshal(resp.Data, &slot))
	assert.Equal(t, model.SlotStatusAvailable, slot.Status)
	assert.Equal(t, 60, slot.DurationMinutes)

	code, resp = do(t, h, http.MethodPost, "/owners/7/slots", `{"range":{"date":"2026-10-19","startTime":"09:30","endTime":"10:30"}}`)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.KindSlotUnavailable, resp.Error.Kind)

	slotPath := fmt.Sprintf("/slots/%d", slot.ID)
	code, _ = do(t, h, http.MethodPost, slotPath+"/book", `{"studentId":10}`)
	require.Equal(t, http.StatusOK, code)

	code, resp = do(t, h, http.MethodPost, slotPath+"/book", `{"studentId":11}`)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)

	code, resp = do(t, h, http.MethodPost, "/owners/7/waitlist", `{"requesterId":20,"desiredRange":`+mondayNine+`}`)
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var entry model.WaitlistEntry
	require.NoError(t, json.Unmarshal(resp.Data, &entry))

	code, resp = do(t, h, http.MethodPost, "/owners/7/waitlist", `{"requesterId":20,"desiredRange":`+mondayNine+`}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, model.KindAlreadyQueued, resp.Error.Kind)

	code, _ = do(t, h, http.MethodPost, slotPath+"/cancel", "")
	require.Equal(t, http.StatusOK, code)

	code, resp = do(t, h, http.MethodGet, fmt.Sprintf("/waitlist/%d", entry.ID), "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &entry))
	assert.Equal(t, model.WaitlistStatusNotified, entry.Status)
	assert.Contains(t, notifier.recipients, int64(20))

	code, resp = do(t, h, http.MethodGet, slotPath+"/bookings", "")
	require.Equal(t, http.StatusOK, code)
	var bookings []model.Booking
	require.NoError(t, json.Unmarshal(resp.Data, &bookings))
	assert.Len(t, bookings, 1)
}

func TestErrorResponses(t *testing.T) {
	h, _ := newTestHandler(t, Options{})

	code, resp := do(t, h, http.MethodGet, "/slots/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, kindBadRequest, resp.Error.Kind)

	code, resp = do(t, h, http.MethodGet, "/slots/999", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, model.KindNotFound, resp.Error.Kind)

	code, resp = do(t, h, http.MethodPost, "/slots/1/book", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, kindValidation, resp.Error.Kind)
	assert.Contains(t, resp.Error.Fields, "StudentID")

	code, resp = do(t, h, http.MethodPost, "/owners/7/slots", `{"range":{"date":"2026-10-19","startTime":"11:00","endTime":"10:00"}}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, model.KindInvalidRange, resp.Error.Kind)

	code, _ = do(t, h, http.MethodGet, "/owners/7/waitlist?status=pending", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, h, http.MethodPost, "/owners/7/conflicts/resolve",
		`{"strategy":"suggest_alternatives","conflicts":[{"proposedRange":`+mondayNine+`}],"preferences":{"maxAdjustmentMinutes":1099511627776,"maxDayShift":30}}`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, kindValidation, resp.Error.Kind)
	assert.Contains(t, resp.Error.Fields, "MaxAdjustmentMinutes")
	assert.Contains(t, resp.Error.Fields, "MaxDayShift")
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestHandler(t, Options{RateLimit: 2})

	for i := 0; i < 2; i++ {
		code, _ := do(t, h, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}
