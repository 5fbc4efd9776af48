package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AvailabilityBlock is a recurring weekly interval during which a
// professional may be booked. Times of day are stored as minutes from local
// midnight; Weekday is ISO (1 = Monday, 7 = Sunday). Blocks for the same day
// may overlap in storage; slot generation deduplicates.
type AvailabilityBlock struct {
	bun.BaseModel `bun:"table:availability_blocks"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	ProfessionalID string    `bun:"professional_id,notnull"`
	Weekday        int16     `bun:"weekday,notnull"`
	StartMinute    int       `bun:"start_minute,notnull"`
	EndMinute      int       `bun:"end_minute,notnull"`
	SlotMinutes    int       `bun:"slot_minutes,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func (b *AvailabilityBlock) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}
