package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vetbook/internal/domain"
)

// BookingRepository is the only writer of appointments. Commit performs the
// overlap re-check and the insert as one atomic unit per professional and
// returns ErrConflict when the interval is no longer free. UpdateStatus
// enforces the lifecycle state machine inside the same serialization scope
// and returns a domain.IllegalTransitionError on an undefined transition.
type BookingRepository interface {
	Commit(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListActiveInRange(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error)
	NextUpcomingForPets(ctx context.Context, petIDs []string, after time.Time) ([]domain.Appointment, error)
}

type AvailabilityRepository interface {
	Replace(ctx context.Context, professionalID string, blocks []domain.AvailabilityBlock) ([]domain.AvailabilityBlock, error)
	List(ctx context.Context, professionalID string) ([]domain.AvailabilityBlock, error)
}

// ServiceCatalog is the narrow read-only lookup the booking flow needs from
// the service catalog subsystem.
type ServiceCatalog interface {
	GetService(ctx context.Context, id uuid.UUID) (domain.Service, error)
}
