package credit

import (
	"time"

	"github.com/google/uuid"
)

// Grant is a block of credit usable within [EffectiveAt, ExpiresAt).
type Grant struct {
	Amount      int64 `json:"amount"`
	EffectiveAt int64 `json:"effective_at"`
	ExpiresAt   int64 `json:"expires_at"`
}

// ActiveAt reports whether t falls inside the grant's window.
func (g Grant) ActiveAt(t int64) bool {
	return g.EffectiveAt <= t && t < g.ExpiresAt
}

// Deduction is a request to consume credit at a single point in time.
type Deduction struct {
	Amount      int64 `json:"amount"`
	EffectiveAt int64 `json:"effective_at"`
}

// GrantState is the per-query view of one grant after allocation.
type GrantState struct {
	Grant     Grant `json:"grant"`
	Remaining int64 `json:"remaining"`
	Consumed  int64 `json:"consumed"`
	Expired   bool  `json:"expired"`
}

// Draw records how much of a deduction one grant funded.
// GrantIndex points into Statement.Grants.
type Draw struct {
	GrantIndex int   `json:"grant_index"`
	Amount     int64 `json:"amount"`
}

// DeductionResult is the outcome of allocating one deduction.
type DeductionResult struct {
	Deduction Deduction `json:"deduction"`
	Applied   int64     `json:"applied"`
	Shortfall int64     `json:"shortfall"`
	Draws     []Draw    `json:"draws"`
}

// Statement is the full allocation result for one query timestamp.
type Statement struct {
	At         int64             `json:"at"`
	Balance    int64             `json:"balance"`
	Grants     []GrantState      `json:"grants"`
	Deductions []DeductionResult `json:"deductions"`
}

// GrantEvent is a stored grant for one account.
type GrantEvent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AccountID   uuid.UUID `db:"account_id" json:"account_id"`
	Amount      int64     `db:"amount" json:"amount"`
	EffectiveAt int64     `db:"effective_at" json:"effective_at"`
	ExpiresAt   int64     `db:"expires_at" json:"expires_at"`
	Seq         int64     `db:"seq" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (e GrantEvent) Grant() Grant {
	return Grant{Amount: e.Amount, EffectiveAt: e.EffectiveAt, ExpiresAt: e.ExpiresAt}
}

// DeductionEvent is a stored deduction for one account.
type DeductionEvent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AccountID   uuid.UUID `db:"account_id" json:"account_id"`
	Amount      int64     `db:"amount" json:"amount"`
	EffectiveAt int64     `db:"effective_at" json:"effective_at"`
	Seq         int64     `db:"seq" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (e DeductionEvent) Deduction() Deduction {
	return Deduction{Amount: e.Amount, EffectiveAt: e.EffectiveAt}
}

// EventSet is every stored event of an account, in insertion order,
// together with the account version it was read at.
type EventSet struct {
	AccountID  uuid.UUID        `json:"account_id"`
	Version    int64            `json:"version"`
	Grants     []GrantEvent     `json:"grants"`
	Deductions []DeductionEvent `json:"deductions"`
}

// AccountStatement is a Statement bound to the account version it was built from.
type AccountStatement struct {
	AccountID uuid.UUID `json:"account_id"`
	Version   int64     `json:"version"`
	Statement
}
