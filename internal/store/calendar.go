package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vetbook/internal/domain"
)

// CalendarTx is the set of operations available inside a per-professional
// calendar transaction. Implementations serialize conflict-sensitive writes
// for one professional; reads outside a transaction never block.
type CalendarTx interface {
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListActiveAppointments(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error

	DeleteAvailability(ctx context.Context, professionalID string) error
	InsertAvailability(ctx context.Context, blocks []domain.AvailabilityBlock) ([]domain.AvailabilityBlock, error)
}
