package handlers

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutor_scheduler/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.uber.org/zap"
)

// Options настройки HTTP-слоя
type Options struct {
	RateLimit   int // запросов в минуту с одного IP, 0 - без ограничения
	CORSOrigins []string
}

type Handler struct {
	slotService      *service.SlotService
	recurringService *service.RecurringService
	waitlistService  *service.WaitlistService
	detector         *service.ConflictDetector
	resolver         *service.ConflictResolver
	clock            service.Clock

	validate   *validator.Validate
	translator ut.Translator
	logger     *zap.Logger

	Mux *chi.Mux
}

func NewHandler(
	slotService *service.SlotService,
	recurringService *service.RecurringService,
	waitlistService *service.WaitlistService,
	detector *service.ConflictDetector,
	resolver *service.ConflictResolver,
	clock service.Clock,
	logger *zap.Logger,
) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		slotService:      slotService,
		recurringService: recurringService,
		waitlistService:  waitlistService,
		detector:         detector,
		resolver:         resolver,
		clock:            clock,
		validate:         validate,
		translator:       trans,
		logger:           logger,
		Mux:              chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes(opts Options) {
	h.Mux.Use(middleware.RequestID)
	h.Mux.Use(middleware.RealIP)
	h.Mux.Use(h.requestLogger)
	h.Mux.Use(h.recoverer)

	if len(opts.CORSOrigins) > 0 {
		h.Mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	if opts.RateLimit > 0 {
		h.Mux.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
	}

	h.Mux.Get("/healthz", h.Health)

	h.Mux.Route("/owners/{ownerID}", func(r chi.Router) {
		r.Use(h.ownerID)

		r.Post("/conflicts", h.DetectConflicts)
		r.Post("/conflicts/resolve", h.ResolveConflicts)

		r.Get("/slots", h.ListSlots)
		r.Post("/slots", h.CreateSlot)

		r.Get("/templates", h.ListTemplates)
		r.Post("/templates", h.ExpandRecurring)

		r.Post("/blocked-periods", h.CreateBlockedPeriod)

		r.Get("/waitlist", h.ListWaitlist)
		r.Post("/waitlist", h.EnqueueWaitlist)
		r.Post("/waitlist/renumber", h.RenumberWaitlist)
	})

	h.Mux.Route("/slots/{id}", func(r chi.Router) {
		r.Use(h.entityID)

		r.Get("/", h.GetSlot)
		r.Delete("/", h.DeleteSlot)
		r.Get("/bookings", h.GetSlotBookings)
		r.Post("/assign", h.AssignSlot)
		r.Post("/book", h.BookSlot)
		r.Post("/decline", h.slotAction(h.slotService.DeclineSlot, "Slot declined"))
		r.Post("/cancel", h.slotAction(h.slotService.CancelSlot, "Booking cancelled"))
		r.Post("/complete", h.slotAction(h.slotService.CompleteSlot, "Slot completed"))
		r.Post("/available", h.slotAction(h.slotService.MarkAvailable, "Slot is available"))
		r.Post("/unavailable", h.slotAction(h.slotService.MarkUnavailable, "Slot is unavailable"))
		r.Post("/withdraw", h.slotAction(h.slotService.WithdrawSlot, "Slot withdrawn"))
	})

	h.Mux.Route("/templates/{id}", func(r chi.Router) {
		r.Use(h.entityID)

		r.Delete("/", h.DeleteSeries)
		r.Post("/activate", h.setTemplateActive(true))
		r.Post("/deactivate", h.setTemplateActive(false))
	})

	h.Mux.Post("/waitlist/sweep", h.SweepWaitlist)
	h.Mux.Route("/waitlist/{id}", func(r chi.Router) {
		r.Use(h.entityID)

		r.Get("/", h.GetWaitlistEntry)
		r.Delete("/", h.RemoveWaitlistEntry)
		r.Get("/estimate", h.EstimateWait)
		r.Post("/promote", h.PromoteWaitlistEntry)
		r.Post("/demote", h.DemoteWaitlistEntry)
		r.Post("/notify", h.NotifyWaitlistEntry)
		r.Post("/fulfill", h.FulfillWaitlistEntry)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "ok", nil)
}
