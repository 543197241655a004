package leads

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

// Store persists leads in the relational database.
type Store struct {
	pool PgxPool
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &Store{pool: pool}
}

const leadColumns = `id, full_name, phone, email, source, status, outcome_code, outcome_notes, assigned_agent_id, created_by, updated_by, created_at, updated_at`

// Create inserts a new lead row.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Lead, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Status == "" {
		p.Status = "new"
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, full_name, phone, email, source, status, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING ` + leadColumns + `
	`
	return scanLead(s.pool.QueryRow(ctx, query, id, p.FullName, p.Phone, p.Email, p.Source, p.Status, p.ActorID))
}

// GetByID fetches a lead.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE id = $1
	`
	return scanLead(s.pool.QueryRow(ctx, query, id))
}

// FindByPhoneVariants returns the lead whose stored phone matches any of the
// given normalized variants, or nil when no lead matches.
func (s *Store) FindByPhoneVariants(ctx context.Context, variants []string) (*Lead, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE phone = ANY($1)
		ORDER BY created_at DESC
		LIMIT 1
	`
	lead, err := scanLead(s.pool.QueryRow(ctx, query, variants))
	if errors.Is(err, ErrLeadNotFound) {
		return nil, nil
	}
	return lead, err
}

// UpdateStatusTx writes the mirrored status fields inside tx. Callers outside
// the appointment status path must not use this.
func (s *Store) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, outcomeCode, outcomeNotes, actorID string) error {
	query := `
		UPDATE leads
		SET status = $2, outcome_code = $3, outcome_notes = $4, updated_by = $5, updated_at = now()
		WHERE id = $1
	`
	ct, err := tx.Exec(ctx, query, id, status, outcomeCode, outcomeNotes, actorID)
	if err != nil {
		return fmt.Errorf("leads: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// List returns the most recently created leads.
func (s *Store) List(ctx context.Context, limit int32) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lead)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (*Lead, error) {
	lead, err := scanLeadRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}

func scanLeadRow(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.FullName,
		&lead.Phone,
		&lead.Email,
		&lead.Source,
		&lead.Status,
		&lead.OutcomeCode,
		&lead.OutcomeNotes,
		&lead.AssignedAgentID,
		&lead.CreatedBy,
		&lead.UpdatedBy,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("leads: scan lead: %w", err)
	}
	return &lead, nil
}
