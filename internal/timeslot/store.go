package timeslot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TCaken/loancrm/pkg/logging"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const defaultSearchHorizonDays = 7

// Store owns timeslot persistence and the capacity-checked reservation
// primitives. All occupied_count mutations in the system go through Reserve
// and Release.
type Store struct {
	pool        PgxPool
	horizonDays int
	logger      *logging.Logger
}

// NewStore creates a timeslot store backed by pgx.
func NewStore(pool PgxPool, horizonDays int, logger *logging.Logger) *Store {
	if pool == nil {
		panic("timeslot: pgx pool required")
	}
	if horizonDays <= 0 {
		horizonDays = defaultSearchHorizonDays
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{pool: pool, horizonDays: horizonDays, logger: logger}
}

const slotColumns = `id, slot_date, start_time, end_time, max_capacity, occupied_count, disabled, created_at, updated_at`

// GetByID fetches a slot.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Timeslot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM timeslots
		WHERE id = $1
	`
	return scanSlot(s.pool.QueryRow(ctx, query, id))
}

// FindAvailable returns the earliest non-disabled slot on the given date,
// ordered by start time. Occupancy is ignored: capacity is advisory for
// lookup and enforced at reservation time. Returns nil when the date has no
// slots.
func (s *Store) FindAvailable(ctx context.Context, date time.Time) (*Timeslot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM timeslots
		WHERE slot_date = $1 AND NOT disabled
		ORDER BY start_time
		LIMIT 1
	`
	slot, err := scanSlot(s.pool.QueryRow(ctx, query, date))
	if errors.Is(err, ErrSlotNotFound) {
		return nil, nil
	}
	return slot, err
}

// FindNearest returns the first non-disabled slot on date or, failing that,
// scans forward day by day up to the configured horizon. Returns nil when the
// whole horizon is empty.
func (s *Store) FindNearest(ctx context.Context, date time.Time) (*Timeslot, error) {
	for offset := 0; offset <= s.horizonDays; offset++ {
		slot, err := s.FindAvailable(ctx, date.AddDate(0, 0, offset))
		if err != nil {
			return nil, err
		}
		if slot != nil {
			return slot, nil
		}
	}
	return nil, nil
}

// ListByDate returns all slots on the given date ordered by start time.
func (s *Store) ListByDate(ctx context.Context, date time.Time) ([]Timeslot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM timeslots
		WHERE slot_date = $1
		ORDER BY start_time
	`
	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("timeslot: list by date: %w", err)
	}
	defer rows.Close()

	var slots []Timeslot
	for rows.Next() {
		var slot Timeslot
		if err := rows.Scan(
			&slot.ID,
			&slot.Date,
			&slot.StartTime,
			&slot.EndTime,
			&slot.MaxCapacity,
			&slot.OccupiedCount,
			&slot.Disabled,
			&slot.CreatedAt,
			&slot.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("timeslot: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// GetForUpdate loads a slot inside tx with a row lock.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Timeslot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM timeslots
		WHERE id = $1
		FOR UPDATE
	`
	return scanSlot(tx.QueryRow(ctx, query, id))
}

// Reserve increments the slot's occupancy inside tx and returns the locked
// slot. It fails with ErrCapacityExceeded when the slot is full and
// allowOverbook is false.
func (s *Store) Reserve(ctx context.Context, tx pgx.Tx, id uuid.UUID, allowOverbook bool) (*Timeslot, error) {
	slot, err := s.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if slot.Full() && !allowOverbook {
		return nil, ErrCapacityExceeded
	}

	query := `
		UPDATE timeslots
		SET occupied_count = occupied_count + 1, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, id); err != nil {
		return nil, fmt.Errorf("timeslot: reserve: %w", err)
	}
	slot.OccupiedCount++
	return slot, nil
}

// Release decrements the slot's occupancy inside tx, flooring at zero.
func (s *Store) Release(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE timeslots
		SET occupied_count = GREATEST(occupied_count - 1, 0), updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("timeslot: release: %w", err)
	}
	return nil
}

func scanSlot(row pgx.Row) (*Timeslot, error) {
	var slot Timeslot
	if err := row.Scan(
		&slot.ID,
		&slot.Date,
		&slot.StartTime,
		&slot.EndTime,
		&slot.MaxCapacity,
		&slot.OccupiedCount,
		&slot.Disabled,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("timeslot: scan slot: %w", err)
	}
	return &slot, nil
}
