package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/TCaken/loancrm/internal/appointment"
	"github.com/TCaken/loancrm/internal/borrowers"
	"github.com/TCaken/loancrm/internal/leads"
	"github.com/TCaken/loancrm/internal/phone"
)

// LeadDirectory is the slice of the lead store the engine consumes.
type LeadDirectory interface {
	FindByPhoneVariants(ctx context.Context, variants []string) (*leads.Lead, error)
	Create(ctx context.Context, p leads.CreateParams) (*leads.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
}

// BorrowerDirectory is the slice of the borrower store the engine consumes.
type BorrowerDirectory interface {
	FindByPhoneVariants(ctx context.Context, variants []string) (*borrowers.Borrower, error)
	GetByID(ctx context.Context, id uuid.UUID) (*borrowers.Borrower, error)
}

// OwnerRef identifies the person a feed row resolved to.
type OwnerRef struct {
	Kind  appointment.Kind
	ID    uuid.UUID
	Name  string
	Phone string
}

// Matcher resolves feed-row phone numbers to owner records. Borrowers are
// checked first: when a number matches both an existing customer and a lead,
// the customer record wins.
type Matcher struct {
	leads     LeadDirectory
	borrowers BorrowerDirectory
}

func NewMatcher(leadDir LeadDirectory, borrowerDir BorrowerDirectory) *Matcher {
	if leadDir == nil || borrowerDir == nil {
		panic("reconcile: lead and borrower directories required")
	}
	return &Matcher{leads: leadDir, borrowers: borrowerDir}
}

// Resolve returns the owner for a raw phone value, or nil when no record
// matches. Unusable input (no digits) also returns nil.
func (m *Matcher) Resolve(ctx context.Context, rawPhone string) (*OwnerRef, error) {
	variants := phone.Normalize(rawPhone)
	if len(variants) == 0 {
		return nil, nil
	}

	b, err := m.borrowers.FindByPhoneVariants(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("reconcile: borrower lookup: %w", err)
	}
	if b != nil {
		return &OwnerRef{Kind: appointment.KindBorrower, ID: b.ID, Name: b.FullName, Phone: b.Phone}, nil
	}

	l, err := m.leads.FindByPhoneVariants(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("reconcile: lead lookup: %w", err)
	}
	if l != nil {
		return &OwnerRef{Kind: appointment.KindLead, ID: l.ID, Name: l.FullName, Phone: l.Phone}, nil
	}
	return nil, nil
}
