package timeslot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var slotCols = []string{"id", "slot_date", "start_time", "end_time", "max_capacity", "occupied_count", "disabled", "created_at", "updated_at"}

func slotRow(mock pgxmock.PgxPoolIface, id uuid.UUID, date time.Time, occupied, capacity int) *pgxmock.Rows {
	now := time.Now().UTC()
	return mock.NewRows(slotCols).AddRow(id, date, "09:00", "10:00", capacity, occupied, false, now, now)
}

func TestFindAvailableReturnsNilWhenDateEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock, 7, nil)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM timeslots").WithArgs(date).WillReturnRows(mock.NewRows(slotCols))

	slot, err := store.FindAvailable(context.Background(), date)
	if err != nil {
		t.Fatalf("find available failed: %v", err)
	}
	if slot != nil {
		t.Fatalf("expected nil slot, got %#v", slot)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindNearestScansForward(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock, 7, nil)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	// Empty on the target date and the day after, a slot two days out.
	mock.ExpectQuery("FROM timeslots").WithArgs(date).WillReturnRows(mock.NewRows(slotCols))
	mock.ExpectQuery("FROM timeslots").WithArgs(date.AddDate(0, 0, 1)).WillReturnRows(mock.NewRows(slotCols))
	mock.ExpectQuery("FROM timeslots").WithArgs(date.AddDate(0, 0, 2)).WillReturnRows(slotRow(mock, id, date.AddDate(0, 0, 2), 0, 5))

	slot, err := store.FindNearest(context.Background(), date)
	if err != nil {
		t.Fatalf("find nearest failed: %v", err)
	}
	if slot == nil || slot.ID != id {
		t.Fatalf("unexpected slot: %#v", slot)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveEnforcesCapacity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock, 7, nil)
	id := uuid.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(slotRow(mock, id, date, 1, 1))

	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, err := store.Reserve(context.Background(), tx, id, false); err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveAllowsOverbookWhenRequested(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock, 7, nil)
	id := uuid.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(slotRow(mock, id, date, 1, 1))
	mock.ExpectExec("UPDATE timeslots").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	slot, err := store.Reserve(context.Background(), tx, id, true)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if slot.OccupiedCount != 2 {
		t.Fatalf("expected occupancy 2 after overbook, got %d", slot.OccupiedCount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveUnknownSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock, 7, nil)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(mock.NewRows(slotCols))

	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, err := store.Reserve(context.Background(), tx, id, false); err != ErrSlotNotFound {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}
