package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vetbook/internal/domain"
	"vetbook/internal/service/booking"
	"vetbook/internal/store"
)

type bookingService interface {
	GetSlots(ctx context.Context, in booking.GetSlotsInput) ([]time.Time, error)
	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (domain.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error)
	ReplaceAvailability(ctx context.Context, professionalID string, blocks []booking.BlockInput) ([]domain.AvailabilityBlock, error)
	ListAvailability(ctx context.Context, professionalID string) ([]domain.AvailabilityBlock, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	UpcomingForPets(ctx context.Context, petIDs []string) ([]domain.Appointment, error)
}

type BookingHandler struct {
	svc bookingService
	log *slog.Logger
}

func NewBookingHandler(svc bookingService, log *slog.Logger) *BookingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.booking")),
	}
}

const dateLayout = "2006-01-02"

func (h *BookingHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "GetSlots"))
	professionalID := chi.URLParam(r, "professionalID")

	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		h.badRequest(w, log, "service_id must be a UUID")
		return
	}

	from, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		h.badRequest(w, log, "from must be a date (YYYY-MM-DD)")
		return
	}
	to := from
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = time.Parse(dateLayout, raw)
		if err != nil {
			h.badRequest(w, log, "to must be a date (YYYY-MM-DD)")
			return
		}
	}

	slots, err := h.svc.GetSlots(r.Context(), booking.GetSlotsInput{
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		From:           from,
		To:             to,
		TimeZone:       r.URL.Query().Get("time_zone"),
	})
	if err != nil {
		h.respondError(w, log, err, professionalID)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}

	log.Debug(
		"slots listed",
		slog.String("professional_id", professionalID),
		slog.Int("count", len(slots)),
	)
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "CreateBooking"))
	professionalID := chi.URLParam(r, "professionalID")

	var req createBookingRequest
	if !h.decode(w, log, r, &req) {
		return
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		h.badRequest(w, log, "service_id must be a UUID")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		h.badRequest(w, log, "start_time must be RFC 3339")
		return
	}

	appt, err := h.svc.CreateBooking(r.Context(), booking.CreateBookingInput{
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		StartTime:      start,
		ClientID:       req.ClientID,
		PetID:          req.PetID,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		PetName:        req.PetName,
	})
	if err != nil {
		h.respondError(w, log, err, professionalID)
		return
	}

	log.Info(
		"booking created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("professional_id", appt.ProfessionalID),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "ChangeStatus"))

	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.badRequest(w, log, "appointment_id must be a UUID")
		return
	}

	var req changeStatusRequest
	if !h.decode(w, log, r, &req) {
		return
	}

	appt, err := h.svc.ChangeStatus(r.Context(), id, domain.AppointmentStatus(req.Status))
	if err != nil {
		h.respondError(w, log, err, "")
		return
	}

	log.Info(
		"appointment status changed",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "GetAppointment"))

	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.badRequest(w, log, "appointment_id must be a UUID")
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.respondError(w, log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) ReplaceAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "ReplaceAvailability"))
	professionalID := chi.URLParam(r, "professionalID")

	var req replaceAvailabilityRequest
	if !h.decode(w, log, r, &req) {
		return
	}

	blocks := make([]booking.BlockInput, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		blocks = append(blocks, booking.BlockInput{
			Weekday:     b.Weekday,
			StartMinute: b.StartMinute,
			EndMinute:   b.EndMinute,
			SlotMinutes: b.SlotMinutes,
		})
	}

	stored, err := h.svc.ReplaceAvailability(r.Context(), professionalID, blocks)
	if err != nil {
		h.respondError(w, log, err, professionalID)
		return
	}

	log.Info(
		"availability replaced",
		slog.String("professional_id", professionalID),
		slog.Int("blocks", len(stored)),
	)
	writeJSON(w, http.StatusOK, map[string][]availabilityBlockResponse{"blocks": toAvailabilityResponse(stored)})
}

func (h *BookingHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "ListAvailability"))
	professionalID := chi.URLParam(r, "professionalID")

	blocks, err := h.svc.ListAvailability(r.Context(), professionalID)
	if err != nil {
		h.respondError(w, log, err, professionalID)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]availabilityBlockResponse{"blocks": toAvailabilityResponse(blocks)})
}

func (h *BookingHandler) UpcomingForPets(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "UpcomingForPets"))

	var req upcomingForPetsRequest
	if !h.decode(w, log, r, &req) {
		return
	}

	appts, err := h.svc.UpcomingForPets(r.Context(), req.PetIDs)
	if err != nil {
		h.respondError(w, log, err, "")
		return
	}

	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string][]appointmentResponse{"appointments": out})
}

func (h *BookingHandler) decode(w http.ResponseWriter, log *slog.Logger, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.badRequest(w, log, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.badRequest(w, log, err.Error())
		return false
	}
	return true
}

func (h *BookingHandler) badRequest(w http.ResponseWriter, log *slog.Logger, msg string) {
	log.Warn("invalid request", slog.String("reason", msg))
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: msg})
}

// A commit conflict is an expected concurrency outcome, not a failure: the
// shown slot went stale and the client should re-query slots.
func (h *BookingHandler) respondError(w http.ResponseWriter, log *slog.Logger, err error, professionalID string) {
	switch {
	case errors.Is(err, store.ErrConflict):
		log.Info("slot conflict", slog.String("professional_id", professionalID))
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "conflict",
			Message: "That time is no longer available. Please pick another slot.",
		})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	default:
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			h.badRequest(w, log, vErr.Error())
			return
		}
		var tErr *domain.IllegalTransitionError
		if errors.As(err, &tErr) {
			log.Warn("illegal transition", slog.Any("err", tErr))
			writeJSON(w, http.StatusConflict, errorResponse{Error: "illegal_transition", Message: tErr.Error()})
			return
		}
		log.Error("request failed", slog.Any("err", err), slog.String("professional_id", professionalID))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
