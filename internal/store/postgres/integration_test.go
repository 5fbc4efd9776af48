package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"vetbook/internal/domain"
	"vetbook/internal/store"
)

var errRollbackAfterChecks = errors.New("rollback after checks")

func TestPostgresIntegration_CommitListAndExclusionConstraint(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("VETBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("VETBOOK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "vetbook_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(cctx)
	})

	svcID := uuid.MustParse("00000000-0000-0000-0000-000000000911")
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema + ", public").Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}
		if err := seedService(ctx, tx, svcID, "p1"); err != nil {
			return err
		}

		c := calendarTx{tx: tx}

		a1, err := c.InsertAppointment(ctx, domain.Appointment{
			ProfessionalID: "p1",
			ServiceID:      svcID,
			StartTime:      start,
			EndTime:        end,
			Status:         domain.AppointmentStatusPending,
			PriceCents:     4500,
			ClientName:     "Dana",
		})
		if err != nil {
			return err
		}
		if a1.ID == uuid.Nil {
			return fmt.Errorf("expected non-nil id")
		}

		rows, err := c.ListActiveAppointments(ctx, "p1", start.Add(-time.Minute), end.Add(time.Minute))
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].ID != a1.ID {
			return fmt.Errorf("listed rows = %v, want one row with id %s", rows, a1.ID)
		}

		// Adjacent interval shares only the boundary instant and must fit.
		a2, err := c.InsertAppointment(ctx, domain.Appointment{
			ProfessionalID: "p1",
			ServiceID:      svcID,
			StartTime:      end,
			EndTime:        end.Add(30 * time.Minute),
			Status:         domain.AppointmentStatusConfirmed,
			PriceCents:     4500,
			ClientName:     "Eli",
		})
		if err != nil {
			return err
		}
		if a2.ID == uuid.Nil {
			return fmt.Errorf("expected non-nil id")
		}

		// The overlap insert aborts the transaction, so it has to be the
		// last statement before rollback.
		_, err = c.InsertAppointment(ctx, domain.Appointment{
			ProfessionalID: "p1",
			ServiceID:      svcID,
			StartTime:      start.Add(15 * time.Minute),
			EndTime:        end.Add(15 * time.Minute),
			Status:         domain.AppointmentStatusPending,
			PriceCents:     4500,
			ClientName:     "Finn",
		})
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("overlap err = %v, want %v", err, store.ErrConflict)
		}

		return errRollbackAfterChecks
	})
	if !errors.Is(err, errRollbackAfterChecks) {
		t.Fatalf("tx error: %v", err)
	}
}

func TestPostgresIntegration_ConcurrentCommitsOneWinner(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("VETBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("VETBOOK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	admin, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(admin)
	})

	schema := "vetbook_test_" + randomHex(t, 8)
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(cctx)
	})

	// Every pooled connection pins search_path to the test schema.
	db, err := Open(ctx, schemaScopedURL(t, databaseURL, schema), PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	svcID := uuid.MustParse("00000000-0000-0000-0000-000000000912")
	if err := seedService(ctx, db, svcID, "p1"); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	repo := NewBookingRepo(db)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	const workers = 8
	results := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := repo.Commit(ctx, domain.Appointment{
				ProfessionalID: "p1",
				ServiceID:      svcID,
				StartTime:      start,
				EndTime:        end,
				Status:         domain.AppointmentStatusPending,
				PriceCents:     4500,
				ClientName:     fmt.Sprintf("client-%d", i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won, conflicted int
	for i, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, store.ErrConflict):
			conflicted++
		default:
			t.Fatalf("worker %d: unexpected error: %v", i, err)
		}
	}
	if won != 1 || conflicted != workers-1 {
		t.Fatalf("winners = %d, conflicts = %d, want 1 and %d", won, conflicted, workers-1)
	}

	rows, err := repo.ListActiveInRange(ctx, "p1", start.Add(-time.Minute), end.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListActiveInRange error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
}

func schemaScopedURL(t *testing.T, databaseURL, schema string) string {
	t.Helper()
	u, err := neturl.Parse(databaseURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	q := u.Query()
	q.Set("options", "-csearch_path="+schema+",public")
	u.RawQuery = q.Encode()
	return u.String()
}

func seedService(ctx context.Context, exec rawExecutor, id uuid.UUID, professionalID string) error {
	_, err := exec.NewRaw(
		"INSERT INTO services (id, professional_id, name, duration_minutes, price_cents) VALUES (?, ?, ?, ?, ?)",
		id, professionalID, "Consultation", 30, 4500,
	).Exec(ctx)
	return err
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// btree_gist lives in public; the per-test schema only needs it visible.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
