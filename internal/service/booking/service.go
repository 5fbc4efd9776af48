package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vetbook/internal/domain"
	"vetbook/internal/events"
	"vetbook/internal/store"
)

// MaxSlotRangeDays bounds a single slot query.
const MaxSlotRangeDays = 62

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	bookings     store.BookingRepository
	availability store.AvailabilityRepository
	catalog      store.ServiceCatalog
	sink         events.Sink
	log          *slog.Logger
}

func NewService(bookings store.BookingRepository, availability store.AvailabilityRepository, catalog store.ServiceCatalog, sink events.Sink, log *slog.Logger) *Service {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		bookings:     bookings,
		availability: availability,
		catalog:      catalog,
		sink:         sink,
		log:          log.With(slog.String("component", "service.booking")),
	}
}

type GetSlotsInput struct {
	ProfessionalID string
	ServiceID      uuid.UUID
	From           time.Time
	To             time.Time
	TimeZone       string
}

// GetSlots returns the bookable start times between the civil dates of From
// and To (inclusive, in TimeZone) for the given service. Read-only; the real
// no-overlap guarantee is enforced at commit time, so a returned slot may go
// stale before it is booked.
func (s *Service) GetSlots(ctx context.Context, in GetSlotsInput) ([]time.Time, error) {
	if in.ProfessionalID == "" {
		return nil, validationError("professional_id is required")
	}
	if in.ServiceID == uuid.Nil {
		return nil, validationError("service_id is required")
	}
	if in.To.Before(in.From) {
		return nil, validationError("to must not be before from")
	}
	if in.To.Sub(in.From) > MaxSlotRangeDays*24*time.Hour {
		return nil, validationError("date range too long")
	}

	loc := time.UTC
	if tz := strings.TrimSpace(in.TimeZone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, validationError("invalid time_zone")
		}
		loc = l
	}

	svc, err := s.lookupService(ctx, in.ProfessionalID, in.ServiceID)
	if err != nil {
		return nil, err
	}

	blocks, err := s.availability.List(ctx, in.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	// From/To carry civil dates; anchor them to midnight in loc without
	// converting the instants first, matching GenerateSlots.
	windowStart := time.Date(in.From.Year(), in.From.Month(), in.From.Day(), 0, 0, 0, 0, loc).UTC()
	windowEnd := time.Date(in.To.Year(), in.To.Month(), in.To.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC()

	active, err := s.bookings.ListActiveInRange(ctx, in.ProfessionalID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.TimeSpan, 0, len(active))
	for _, a := range active {
		busy = append(busy, domain.TimeSpan{Start: a.StartTime.UTC(), End: a.EndTime.UTC()})
	}

	return domain.GenerateSlots(blocks, busy, in.From, in.To, svc.Duration(), loc), nil
}

type CreateBookingInput struct {
	ProfessionalID string
	ServiceID      uuid.UUID
	StartTime      time.Time
	ClientID       *string
	PetID          *string
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	PetName        string
}

// CreateBooking turns a chosen slot into a pending appointment. The price and
// contact fields are snapshotted at commit; the repository guarantees no
// overlapping active appointment is ever committed.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (domain.Appointment, error) {
	if in.ProfessionalID == "" {
		return domain.Appointment{}, validationError("professional_id is required")
	}
	if in.ServiceID == uuid.Nil {
		return domain.Appointment{}, validationError("service_id is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	clientName := strings.TrimSpace(in.ClientName)
	if clientName == "" {
		return domain.Appointment{}, validationError("client_name is required")
	}

	svc, err := s.lookupService(ctx, in.ProfessionalID, in.ServiceID)
	if err != nil {
		return domain.Appointment{}, err
	}

	start := in.StartTime.UTC()
	end := start.Add(svc.Duration())

	appt := domain.Appointment{
		ProfessionalID: in.ProfessionalID,
		ClientID:       in.ClientID,
		PetID:          in.PetID,
		ServiceID:      svc.ID,
		StartTime:      start,
		EndTime:        end,
		Status:         domain.AppointmentStatusPending,
		PriceCents:     svc.PriceCents,
		ClientName:     clientName,
		ClientEmail:    strings.TrimSpace(in.ClientEmail),
		ClientPhone:    strings.TrimSpace(in.ClientPhone),
		PetName:        strings.TrimSpace(in.PetName),
	}

	created, err := s.bookings.Commit(ctx, appt)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.emit(ctx, domain.EventKindBookingCreated, created)
	return created, nil
}

// ChangeStatus drives the appointment lifecycle. Undefined transitions come
// back as *domain.IllegalTransitionError with the stored status untouched.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !target.Valid() {
		return domain.Appointment{}, validationError("unknown status")
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, target)
	if err != nil {
		return domain.Appointment{}, err
	}

	if kind := domain.EventForTransition(target); kind != "" {
		s.emit(ctx, kind, updated)
	}
	return updated, nil
}

type BlockInput struct {
	Weekday     int16
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

// ReplaceAvailability swaps the professional's weekly block set wholesale.
// Blocks for the same day may overlap; slot generation deduplicates.
func (s *Service) ReplaceAvailability(ctx context.Context, professionalID string, blocks []BlockInput) ([]domain.AvailabilityBlock, error) {
	if professionalID == "" {
		return nil, validationError("professional_id is required")
	}

	rows := make([]domain.AvailabilityBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Weekday < 1 || b.Weekday > 7 {
			return nil, validationError("weekday must be between 1 (Monday) and 7 (Sunday)")
		}
		if b.StartMinute < 0 || b.EndMinute > 24*60 {
			return nil, validationError("block times must fall within the day")
		}
		if b.StartMinute >= b.EndMinute {
			return nil, validationError("end_minute must be after start_minute")
		}
		if b.SlotMinutes < 1 {
			return nil, validationError("slot_minutes must be at least 1")
		}
		rows = append(rows, domain.AvailabilityBlock{
			ProfessionalID: professionalID,
			Weekday:        b.Weekday,
			StartMinute:    b.StartMinute,
			EndMinute:      b.EndMinute,
			SlotMinutes:    b.SlotMinutes,
		})
	}

	return s.availability.Replace(ctx, professionalID, rows)
}

func (s *Service) ListAvailability(ctx context.Context, professionalID string) ([]domain.AvailabilityBlock, error) {
	if professionalID == "" {
		return nil, validationError("professional_id is required")
	}
	return s.availability.List(ctx, professionalID)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.bookings.GetByID(ctx, id)
}

// UpcomingForPets returns the next upcoming active appointment per pet.
func (s *Service) UpcomingForPets(ctx context.Context, petIDs []string) ([]domain.Appointment, error) {
	ids := make([]string, 0, len(petIDs))
	for _, id := range petIDs {
		if t := strings.TrimSpace(id); t != "" {
			ids = append(ids, t)
		}
	}
	if len(ids) == 0 {
		return nil, validationError("at least one pet_id is required")
	}
	if len(ids) > 100 {
		return nil, validationError("too many pet_ids")
	}
	return s.bookings.NextUpcomingForPets(ctx, ids, time.Now().UTC())
}

func (s *Service) lookupService(ctx context.Context, professionalID string, serviceID uuid.UUID) (domain.Service, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Service{}, validationError("unknown service")
		}
		return domain.Service{}, err
	}
	if svc.ProfessionalID != professionalID {
		return domain.Service{}, validationError("service does not belong to this professional")
	}
	if svc.DurationMinutes <= 0 {
		return domain.Service{}, validationError("service has no usable duration")
	}
	return svc, nil
}

func (s *Service) emit(ctx context.Context, kind domain.EventKind, appt domain.Appointment) {
	event := domain.Event{Kind: kind, Appointment: appt, OccurredAt: time.Now().UTC()}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.log.Warn(
			"lifecycle event publish failed",
			slog.Any("err", err),
			slog.String("kind", string(kind)),
			slog.String("appointment_id", appt.ID.String()),
		)
	}
}
