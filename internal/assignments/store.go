// Package assignments keeps the append-only agent assignment history. The
// rejection payload and the dashboard read the latest record per owner.
package assignments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Record is one assignment of an owner to an agent.
type Record struct {
	ID         int64
	OwnerID    uuid.UUID
	OwnerKind  string
	AgentID    string
	Method     string
	Note       string
	Tags       []string
	AssignedAt time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("assignments: db required")
	}
	return &Store{db: db}
}

// Append records a new assignment. History is never updated in place.
func (s *Store) Append(ctx context.Context, r *Record) error {
	if r.AssignedAt.IsZero() {
		r.AssignedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO assignment_history (owner_id, owner_kind, agent_id, method, note, tags, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.OwnerID, r.OwnerKind, r.AgentID, r.Method, r.Note, pq.Array(r.Tags), r.AssignedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("assignments: append: %w", err)
	}
	return nil
}

// LatestForOwner returns the most recent assignment, or nil when the owner
// was never assigned.
func (s *Store) LatestForOwner(ctx context.Context, ownerKind string, ownerID uuid.UUID) (*Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, owner_kind, agent_id, method, note, tags, assigned_at
		FROM assignment_history
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1`, ownerKind, ownerID).Scan(
		&r.ID, &r.OwnerID, &r.OwnerKind, &r.AgentID, &r.Method, &r.Note, pq.Array(&r.Tags), &r.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("assignments: latest for owner: %w", err)
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return &r, nil
}

// ListForOwner returns the full history, newest first.
func (s *Store) ListForOwner(ctx context.Context, ownerKind string, ownerID uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, owner_kind, agent_id, method, note, tags, assigned_at
		FROM assignment_history
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY assigned_at DESC, id DESC`, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("assignments: list for owner: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.OwnerKind, &r.AgentID, &r.Method, &r.Note, pq.Array(&r.Tags), &r.AssignedAt); err != nil {
			return nil, fmt.Errorf("assignments: scan record: %w", err)
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		out = append(out, r)
	}
	if out == nil {
		out = []Record{}
	}
	return out, rows.Err()
}
