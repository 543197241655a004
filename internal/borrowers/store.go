package borrowers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists borrowers in the relational database.
type Store struct {
	pool PgxPool
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("borrowers: pgx pool required")
	}
	return &Store{pool: pool}
}

const borrowerColumns = `id, full_name, phone, email, loan_ref, status, outcome_code, outcome_notes, assigned_agent_id, created_by, updated_by, created_at, updated_at`

// GetByID fetches a borrower.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Borrower, error) {
	query := `
		SELECT ` + borrowerColumns + `
		FROM borrowers
		WHERE id = $1
	`
	return scanBorrower(s.pool.QueryRow(ctx, query, id))
}

// FindByPhoneVariants returns the borrower whose stored phone matches any of
// the given normalized variants, or nil when none matches.
func (s *Store) FindByPhoneVariants(ctx context.Context, variants []string) (*Borrower, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + borrowerColumns + `
		FROM borrowers
		WHERE phone = ANY($1)
		ORDER BY created_at DESC
		LIMIT 1
	`
	b, err := scanBorrower(s.pool.QueryRow(ctx, query, variants))
	if errors.Is(err, ErrBorrowerNotFound) {
		return nil, nil
	}
	return b, err
}

// UpdateStatusTx writes the mirrored status fields inside tx. Callers outside
// the appointment status path must not use this.
func (s *Store) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, outcomeCode, outcomeNotes, actorID string) error {
	query := `
		UPDATE borrowers
		SET status = $2, outcome_code = $3, outcome_notes = $4, updated_by = $5, updated_at = now()
		WHERE id = $1
	`
	ct, err := tx.Exec(ctx, query, id, status, outcomeCode, outcomeNotes, actorID)
	if err != nil {
		return fmt.Errorf("borrowers: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBorrowerNotFound
	}
	return nil
}

func scanBorrower(row pgx.Row) (*Borrower, error) {
	var b Borrower
	if err := row.Scan(
		&b.ID,
		&b.FullName,
		&b.Phone,
		&b.Email,
		&b.LoanRef,
		&b.Status,
		&b.OutcomeCode,
		&b.OutcomeNotes,
		&b.AssignedAgentID,
		&b.CreatedBy,
		&b.UpdatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBorrowerNotFound
		}
		return nil, fmt.Errorf("borrowers: scan borrower: %w", err)
	}
	return &b, nil
}
