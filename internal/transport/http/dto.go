package http

import (
	"time"

	"github.com/go-playground/validator/v10"

	"vetbook/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createBookingRequest struct {
	ServiceID   string  `json:"service_id" validate:"required,uuid"`
	StartTime   string  `json:"start_time" validate:"required"`
	ClientID    *string `json:"client_id" validate:"omitempty,max=128"`
	PetID       *string `json:"pet_id" validate:"omitempty,max=128"`
	ClientName  string  `json:"client_name" validate:"required,max=256"`
	ClientEmail string  `json:"client_email" validate:"omitempty,email"`
	ClientPhone string  `json:"client_phone" validate:"omitempty,max=32"`
	PetName     string  `json:"pet_name" validate:"omitempty,max=256"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
}

type availabilityBlockRequest struct {
	Weekday     int16 `json:"weekday" validate:"min=1,max=7"`
	StartMinute int   `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int   `json:"end_minute" validate:"min=1,max=1440"`
	SlotMinutes int   `json:"slot_minutes" validate:"min=1,max=1440"`
}

type replaceAvailabilityRequest struct {
	Blocks []availabilityBlockRequest `json:"blocks" validate:"dive"`
}

type upcomingForPetsRequest struct {
	PetIDs []string `json:"pet_ids" validate:"required,min=1,max=100"`
}

type appointmentResponse struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	ClientID       *string   `json:"client_id,omitempty"`
	PetID          *string   `json:"pet_id,omitempty"`
	ServiceID      string    `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	PriceCents     int64     `json:"price_cents"`
	ClientName     string    `json:"client_name"`
	ClientEmail    string    `json:"client_email,omitempty"`
	ClientPhone    string    `json:"client_phone,omitempty"`
	PetName        string    `json:"pet_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type availabilityBlockResponse struct {
	ID          string `json:"id"`
	Weekday     int16  `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	SlotMinutes int    `json:"slot_minutes"`
}

type slotsResponse struct {
	Slots []time.Time `json:"slots"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID.String(),
		ProfessionalID: a.ProfessionalID,
		ClientID:       a.ClientID,
		PetID:          a.PetID,
		ServiceID:      a.ServiceID.String(),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		PriceCents:     a.PriceCents,
		ClientName:     a.ClientName,
		ClientEmail:    a.ClientEmail,
		ClientPhone:    a.ClientPhone,
		PetName:        a.PetName,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAvailabilityResponse(blocks []domain.AvailabilityBlock) []availabilityBlockResponse {
	out := make([]availabilityBlockResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, availabilityBlockResponse{
			ID:          b.ID.String(),
			Weekday:     b.Weekday,
			StartMinute: b.StartMinute,
			EndMinute:   b.EndMinute,
			SlotMinutes: b.SlotMinutes,
		})
	}
	return out
}
