package domain

import "time"

type EventKind string

const (
	EventKindBookingCreated       EventKind = "booking_created"
	EventKindAppointmentConfirmed EventKind = "appointment_confirmed"
	EventKindAppointmentCompleted EventKind = "appointment_completed"
	EventKindAppointmentCancelled EventKind = "appointment_cancelled"
)

// EventForTransition maps a persisted status change to the lifecycle event
// consumers subscribe to (mailer, visit logbook). The zero kind means the
// transition has no hook point.
func EventForTransition(to AppointmentStatus) EventKind {
	switch to {
	case AppointmentStatusConfirmed:
		return EventKindAppointmentConfirmed
	case AppointmentStatusCompleted:
		return EventKindAppointmentCompleted
	case AppointmentStatusCancelled:
		return EventKindAppointmentCancelled
	}
	return ""
}

// Event is emitted after the corresponding state is durable. The engine
// never awaits the consumer.
type Event struct {
	Kind        EventKind
	Appointment Appointment
	OccurredAt  time.Time
}
