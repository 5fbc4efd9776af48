package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"vetbook/internal/domain"
	"vetbook/internal/store"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func appointmentColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "professional_id", "service_id", "start_time", "end_time", "status",
	})
}

var (
	apptID  = uuid.MustParse("00000000-0000-0000-0000-000000000301")
	svcID   = uuid.MustParse("00000000-0000-0000-0000-000000000201")
	nineAM  = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	halfTen = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
)

func TestCommit_ActiveOverlapRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns().
			AddRow(apptID, "p1", svcID, nineAM, halfTen, "confirmed"))
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), domain.Appointment{
		ProfessionalID: "p1",
		ServiceID:      svcID,
		StartTime:      nineAM,
		EndTime:        halfTen,
		Status:         domain.AppointmentStatusPending,
		ClientName:     "Dana",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommit_ExclusionViolationMapsToConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns())
	// The nullable columns make bun run the insert as a query with RETURNING.
	mock.ExpectQuery(`INSERT INTO "appointments"`).
		WillReturnError(&pgconn.PgError{
			Code:           "23P01",
			ConstraintName: "appointments_no_overlap",
		})
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), domain.Appointment{
		ProfessionalID: "p1",
		ServiceID:      svcID,
		StartTime:      nineAM,
		EndTime:        halfTen,
		Status:         domain.AppointmentStatusPending,
		ClientName:     "Dana",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommit_InsertsWhenCalendarFree(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns())
	mock.ExpectQuery(`INSERT INTO "appointments" .+ RETURNING "client_id", "pet_id"`).
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "pet_id"}).AddRow(nil, nil))
	mock.ExpectCommit()

	created, err := repo.Commit(context.Background(), domain.Appointment{
		ProfessionalID: "p1",
		ServiceID:      svcID,
		StartTime:      nineAM,
		EndTime:        halfTen,
		Status:         domain.AppointmentStatusPending,
		ClientName:     "Dana",
	})
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected id to be assigned on insert")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be assigned on insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_NoRowsIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns())

	_, err := repo.GetByID(context.Background(), apptID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, store.ErrNotFound)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatus_IllegalTransitionRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	completed := appointmentColumns().
		AddRow(apptID, "p1", svcID, nineAM, halfTen, "completed")

	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).WillReturnRows(completed)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns().
			AddRow(apptID, "p1", svcID, nineAM, halfTen, "completed"))
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), apptID, domain.AppointmentStatusConfirmed)
	var tErr *domain.IllegalTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *IllegalTransitionError", err)
	}
	if tErr.From != domain.AppointmentStatusCompleted || tErr.To != domain.AppointmentStatusConfirmed {
		t.Fatalf("transition = %s -> %s", tErr.From, tErr.To)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateStatus_AllowedTransitionCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns().
			AddRow(apptID, "p1", svcID, nineAM, halfTen, "pending"))
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns().
			AddRow(apptID, "p1", svcID, nineAM, halfTen, "pending"))
	mock.ExpectExec(`UPDATE "appointments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "appointments"`).
		WillReturnRows(appointmentColumns().
			AddRow(apptID, "p1", svcID, nineAM, halfTen, "confirmed"))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), apptID, domain.AppointmentStatusConfirmed)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if updated.Status != domain.AppointmentStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", updated.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
