package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"vetbook/internal/domain"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

// Replace swaps the professional's whole block set in one transaction under
// the calendar lock, so concurrent slot queries see either the old set or
// the new one, never a partial mix.
func (r *AvailabilityRepo) Replace(ctx context.Context, professionalID string, blocks []domain.AvailabilityBlock) ([]domain.AvailabilityBlock, error) {
	var out []domain.AvailabilityBlock
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalCalendar(ctx, tx, professionalID); err != nil {
			return err
		}
		c := calendarTx{tx: tx}
		if err := c.DeleteAvailability(ctx, professionalID); err != nil {
			return err
		}
		inserted, err := c.InsertAvailability(ctx, blocks)
		if err != nil {
			return err
		}
		out = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AvailabilityRepo) List(ctx context.Context, professionalID string) ([]domain.AvailabilityBlock, error) {
	var rows []domain.AvailabilityBlock
	err := r.db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
