package credit

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// NewGrant validates and builds a Grant.
func NewGrant(amount, effectiveAt, expiresAt int64) (Grant, error) {
	if amount < 0 {
		return Grant{}, fmt.Errorf("%w: amount %d is negative", ErrInvalidGrant, amount)
	}
	if expiresAt <= effectiveAt {
		return Grant{}, fmt.Errorf("%w: expires_at %d must be after effective_at %d", ErrInvalidGrant, expiresAt, effectiveAt)
	}
	return Grant{Amount: amount, EffectiveAt: effectiveAt, ExpiresAt: expiresAt}, nil
}

// NewDeduction validates and builds a Deduction.
func NewDeduction(amount, effectiveAt int64) (Deduction, error) {
	if amount <= 0 {
		return Deduction{}, fmt.Errorf("%w: amount %d must be greater than 0", ErrInvalidDeduction, amount)
	}
	return Deduction{Amount: amount, EffectiveAt: effectiveAt}, nil
}

// Ledger holds the grants and deductions of a single account and answers
// balance queries by replaying every event from scratch.
//
// Events can be added in any order relative to their timestamps. A grant
// added with an early EffectiveAt changes which grants earlier deductions
// draw from, so nothing is precomputed; every query allocates again.
//
// A deduction that exceeds the eligible balance consumes what is available
// and the rest is dropped. Shortfalls are never carried forward as debt.
type Ledger struct {
	mu         sync.RWMutex
	grants     []Grant
	deductions []Deduction
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// AddGrant records a grant of amount usable in [effectiveAt, expiresAt).
func (l *Ledger) AddGrant(amount, effectiveAt, expiresAt int64) error {
	g, err := NewGrant(amount, effectiveAt, expiresAt)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.grants = append(l.grants, g)
	return nil
}

// AddDeduction records a deduction of amount at effectiveAt.
func (l *Ledger) AddDeduction(amount, effectiveAt int64) error {
	d, err := NewDeduction(amount, effectiveAt)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.deductions = append(l.deductions, d)
	return nil
}

// BalanceAt returns the spendable balance at t.
func (l *Ledger) BalanceAt(t int64) int64 {
	return l.StatementAt(t).Balance
}

// StatementAt runs allocation for every event effective at or before t and
// returns the per-grant and per-deduction outcome along with the balance.
func (l *Ledger) StatementAt(t int64) Statement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allocate(l.grants, l.deductions, t)
}

// Grants returns a copy of the recorded grants in insertion order.
func (l *Ledger) Grants() []Grant {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.grants)
}

// Deductions returns a copy of the recorded deductions in insertion order.
func (l *Ledger) Deductions() []Deduction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.deductions)
}

// allocate never touches grants or deductions; all consumption happens on
// the GrantState scratch copies.
func allocate(grants []Grant, deductions []Deduction, at int64) Statement {
	// Expired grants stay in the working set: earlier deductions may have
	// drawn from them while they were active.
	working := make([]GrantState, 0, len(grants))
	for _, g := range grants {
		if g.EffectiveAt <= at {
			working = append(working, GrantState{Grant: g, Remaining: g.Amount})
		}
	}

	applicable := make([]Deduction, 0, len(deductions))
	for _, d := range deductions {
		if d.EffectiveAt <= at {
			applicable = append(applicable, d)
		}
	}
	slices.SortStableFunc(applicable, processingOrder)

	results := make([]DeductionResult, 0, len(applicable))
	for _, d := range applicable {
		results = append(results, consume(working, d))
	}

	var balance int64
	for i := range working {
		st := &working[i]
		st.Consumed = st.Grant.Amount - st.Remaining
		st.Expired = st.Grant.ExpiresAt <= at
		if !st.Expired {
			balance += st.Remaining
		}
	}

	return Statement{
		At:         at,
		Balance:    balance,
		Grants:     working,
		Deductions: results,
	}
}

// consume draws d from the grants active at d.EffectiveAt, soonest-expiring first.
func consume(working []GrantState, d Deduction) DeductionResult {
	eligible := make([]int, 0, len(working))
	for i, st := range working {
		if st.Grant.ActiveAt(d.EffectiveAt) && st.Remaining > 0 {
			eligible = append(eligible, i)
		}
	}
	slices.SortStableFunc(eligible, func(a, b int) int {
		return consumptionOrder(working[a].Grant, working[b].Grant)
	})

	res := DeductionResult{Deduction: d, Draws: []Draw{}}
	owed := d.Amount
	for _, i := range eligible {
		if owed == 0 {
			break
		}
		take := min(working[i].Remaining, owed)
		working[i].Remaining -= take
		owed -= take
		res.Draws = append(res.Draws, Draw{GrantIndex: i, Amount: take})
	}

	res.Applied = d.Amount - owed
	res.Shortfall = owed
	return res
}

// processingOrder sorts deductions by effective time. Callers must use a
// stable sort so equal timestamps keep insertion order.
func processingOrder(a, b Deduction) int {
	return cmp.Compare(a.EffectiveAt, b.EffectiveAt)
}

// consumptionOrder sorts eligible grants by expiry, then by activation.
func consumptionOrder(a, b Grant) int {
	if c := cmp.Compare(a.ExpiresAt, b.ExpiresAt); c != 0 {
		return c
	}
	return cmp.Compare(a.EffectiveAt, b.EffectiveAt)
}
