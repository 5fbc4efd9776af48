package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"vetbook/internal/domain"
	"vetbook/internal/store"
)

var activeStatuses = []domain.AppointmentStatus{
	domain.AppointmentStatusPending,
	domain.AppointmentStatusConfirmed,
}

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type calendarTx struct {
	tx bun.Tx
}

// Commit re-checks the target interval against the current active set and
// inserts, all inside one transaction serialized per professional by an
// advisory lock. The appointments_no_overlap exclusion constraint backstops
// the check: a violation maps to store.ErrConflict either way.
func (r *BookingRepo) Commit(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InProfessionalTransaction(ctx, appt.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		active, err := tx.ListActiveAppointments(ctx, appt.ProfessionalID, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		for _, a := range active {
			if domain.Overlaps(appt.StartTime, appt.EndTime, a.StartTime, a.EndTime) {
				return store.ErrConflict
			}
		}
		created, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *BookingRepo) ListActiveInRange(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus re-reads the row under the professional's calendar lock so the
// transition check and the single-row update cannot interleave with another
// status change for the same appointment.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.AppointmentStatus) (domain.Appointment, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = r.InProfessionalTransaction(ctx, current.ProfessionalID, func(ctx context.Context, tx store.CalendarTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(appt.Status, target) {
			return &domain.IllegalTransitionError{From: appt.Status, To: target}
		}
		if err := tx.SetAppointmentStatus(ctx, id, target); err != nil {
			return err
		}
		updated, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *BookingRepo) NextUpcomingForPets(ctx context.Context, petIDs []string, after time.Time) ([]domain.Appointment, error) {
	if len(petIDs) == 0 {
		return nil, nil
	}
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		DistinctOn("pet_id").
		Where("pet_id IN (?)", bun.In(petIDs)).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("start_time >= ?", after).
		OrderExpr("pet_id, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) InProfessionalTransaction(ctx context.Context, professionalID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalCalendar(ctx, tx, professionalID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx})
	})
}

// Commits for different professionals never contend: the lock key is the
// hashed professional id.
func lockProfessionalCalendar(ctx context.Context, tx bun.Tx, professionalID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", professionalID).Exec(ctx)
	return err
}

func (r calendarTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			pgErr.Code == "23P01" && pgErr.ConstraintName == "appointments_no_overlap" {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r calendarTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.tx.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r calendarTx) ListActiveAppointments(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r calendarTx) DeleteAvailability(ctx context.Context, professionalID string) error {
	_, err := r.tx.NewDelete().
		Model((*domain.AvailabilityBlock)(nil)).
		Where("professional_id = ?", professionalID).
		Exec(ctx)
	return err
}

func (r calendarTx) InsertAvailability(ctx context.Context, blocks []domain.AvailabilityBlock) ([]domain.AvailabilityBlock, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	ms := make([]domain.AvailabilityBlock, len(blocks))
	copy(ms, blocks)
	_, err := r.tx.NewInsert().Model(&ms).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return ms, nil
}
