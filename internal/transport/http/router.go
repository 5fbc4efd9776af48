package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

func NewRouter(h *BookingHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			MaxAge:           300,
			AllowCredentials: false,
		}))
	}
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/professionals/{professionalID}", func(r chi.Router) {
			r.Get("/slots", h.GetSlots)
			r.Post("/bookings", h.CreateBooking)
			r.Get("/availability", h.ListAvailability)
			r.Put("/availability", h.ReplaceAvailability)
		})
		r.Route("/appointments/{appointmentID}", func(r chi.Router) {
			r.Get("/", h.GetAppointment)
			r.Post("/status", h.ChangeStatus)
		})
		r.Post("/pets/upcoming-appointments", h.UpcomingForPets)
	})

	return r
}
