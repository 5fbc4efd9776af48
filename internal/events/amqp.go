package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"vetbook/internal/domain"
)

// AMQPSink publishes lifecycle events to a topic exchange with the event
// kind as routing key, e.g. "appointment_completed".
type AMQPSink struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

type eventMessage struct {
	Kind           string    `json:"kind"`
	AppointmentID  string    `json:"appointment_id"`
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
	PetName        string    `json:"pet_name,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (s *AMQPSink) Publish(ctx context.Context, event domain.Event) error {
	a := event.Appointment
	body, err := json.Marshal(eventMessage{
		Kind:           string(event.Kind),
		AppointmentID:  a.ID.String(),
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
		PetName:        a.PetName,
		OccurredAt:     event.OccurredAt,
	})
	if err != nil {
		return err
	}

	return s.ch.PublishWithContext(ctx, s.exchange, string(event.Kind), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
