package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey string

const (
	ownerIDCtxKey ctxKey = "ownerID"
	idCtxKey      ctxKey = "id"
)

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("Request handled",
			zap.Int("status", ww.Status()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("Panic in handler",
					zap.String("path", r.URL.Path),
					zap.String("stack", string(debug.Stack())),
				)
				h.errorResponse(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ownerID(next http.Handler) http.Handler {
	return h.pathID("ownerID", ownerIDCtxKey, next)
}

func (h *Handler) entityID(next http.Handler) http.Handler {
	return h.pathID("id", idCtxKey, next)
}

func (h *Handler) pathID(param string, key ctxKey, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		if err != nil || id <= 0 {
			h.badRequest(w, r, fmt.Errorf("invalid %s %q", param, chi.URLParam(r, param)))
			return
		}
		ctx := context.WithValue(r.Context(), key, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerIDFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerIDCtxKey).(int64)
	return id
}

func idFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(idCtxKey).(int64)
	return id
}
