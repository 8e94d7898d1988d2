package credit

import (
	"context"

	"github.com/google/uuid"
)

// GrantInput carries a new grant for an account
type GrantInput struct {
	Amount      int64
	EffectiveAt int64
	ExpiresAt   int64
}

// DeductionInput carries a new deduction for an account
type DeductionInput struct {
	Amount      int64
	EffectiveAt int64
}

// Service interface defines the account-scoped credit operations
type Service interface {
	// AddGrant validates and stores a grant. Returns ErrInvalidGrant on bad input
	AddGrant(ctx context.Context, accountID uuid.UUID, in GrantInput) (*GrantEvent, error)

	// AddDeduction validates and stores a deduction. Returns ErrInvalidDeduction on bad input
	AddDeduction(ctx context.Context, accountID uuid.UUID, in DeductionInput) (*DeductionEvent, error)

	// BalanceAt replays the account's events and returns the balance at the timestamp
	BalanceAt(ctx context.Context, accountID uuid.UUID, at int64) (int64, error)

	// StatementAt replays the account's events and returns the full allocation breakdown
	StatementAt(ctx context.Context, accountID uuid.UUID, at int64) (*AccountStatement, error)

	// ListEvents returns the stored grants and deductions of the account
	ListEvents(ctx context.Context, accountID uuid.UUID) (*EventSet, error)
}
