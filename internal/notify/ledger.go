package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerPool is the subset of pgxpool.Pool the ledger uses.
type LedgerPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Ledger records which appointments already had a rejection notification
// attempted. The primary key on (owner_kind, appointment_id) makes
// MarkAttempted the exactly-once gate across rows, passes and modes.
type Ledger struct {
	pool LedgerPool
}

func NewLedger(pool LedgerPool) *Ledger {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &Ledger{pool: pool}
}

const markAttemptedQuery = `
	INSERT INTO rejection_notifications (owner_kind, appointment_id, attempted_at)
	VALUES ($1, $2, now())
	ON CONFLICT (owner_kind, appointment_id) DO NOTHING
`

// MarkAttempted claims the notification attempt for an appointment. It
// returns false when a previous pass already claimed it.
func (l *Ledger) MarkAttempted(ctx context.Context, kind string, appointmentID uuid.UUID) (bool, error) {
	tag, err := l.pool.Exec(ctx, markAttemptedQuery, kind, appointmentID)
	if err != nil {
		return false, fmt.Errorf("notify: mark attempted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
