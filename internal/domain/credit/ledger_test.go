package credit

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func TestEmptyLedger(t *testing.T) {
	l := NewLedger()
	for _, at := range []int64{-100, 0, 1, 1 << 40} {
		if got := l.BalanceAt(at); got != 0 {
			t.Fatalf("BalanceAt(%d) on empty ledger = %d, want 0", at, got)
		}
	}
}

func TestSingleGrantAndDeduction(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 11, 0, 5)
	mustDeduct(t, l, 5, 1)

	if got := l.BalanceAt(2); got != 6 {
		t.Fatalf("BalanceAt(2) = %d, want 6", got)
	}
}

func TestAddThenDeduct(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 0, 10)
	mustDeduct(t, l, 1, 5)

	cases := []struct {
		at   int64
		want int64
	}{
		{7, 4},
		{8, 4},
		{3, 5},
	}
	for _, tc := range cases {
		if got := l.BalanceAt(tc.at); got != tc.want {
			t.Errorf("BalanceAt(%d) = %d, want %d", tc.at, got, tc.want)
		}
	}
}

func TestSoonestExpiringConsumedFirst(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 0, 10)
	mustGrant(t, l, 6, 1, 5)

	if got := l.BalanceAt(2); got != 11 {
		t.Fatalf("BalanceAt(2) = %d, want 11", got)
	}

	mustDeduct(t, l, 4, 3)

	if got := l.BalanceAt(4); got != 7 {
		t.Fatalf("BalanceAt(4) = %d, want 7", got)
	}
	if got := l.BalanceAt(6); got != 5 {
		t.Fatalf("BalanceAt(6) = %d, want 5", got)
	}
}

func TestRetroactiveGrantChangesHistory(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 15, 23)
	mustDeduct(t, l, 4, 17)

	if got := l.BalanceAt(20); got != 1 {
		t.Fatalf("BalanceAt(20) = %d, want 1", got)
	}

	mustGrant(t, l, 8, 3, 19)

	if got := l.BalanceAt(20); got != 5 {
		t.Fatalf("BalanceAt(20) after retroactive grant = %d, want 5", got)
	}
}

func TestOldAndNewBlocks(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 0, 10)
	mustGrant(t, l, 9, 15, 20)

	if got := l.BalanceAt(2); got != 5 {
		t.Fatalf("BalanceAt(2) = %d, want 5", got)
	}

	mustDeduct(t, l, 5, 3)
	if got := l.BalanceAt(4); got != 0 {
		t.Fatalf("BalanceAt(4) = %d, want 0", got)
	}

	mustDeduct(t, l, 4, 16)
	if got := l.BalanceAt(17); got != 5 {
		t.Fatalf("BalanceAt(17) = %d, want 5", got)
	}
}

func TestRetroactiveDeduction(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 8, 0, 10)
	mustGrant(t, l, 6, 5, 15)

	if got := l.BalanceAt(2); got != 8 {
		t.Fatalf("BalanceAt(2) = %d, want 8", got)
	}

	mustDeduct(t, l, 5, 7)
	if got := l.BalanceAt(8); got != 9 {
		t.Fatalf("BalanceAt(8) = %d, want 9", got)
	}

	mustDeduct(t, l, 4, 3)
	if got := l.BalanceAt(8); got != 5 {
		t.Fatalf("BalanceAt(8) after past deduction = %d, want 5", got)
	}
	if got := l.BalanceAt(13); got != 5 {
		t.Fatalf("BalanceAt(13) = %d, want 5", got)
	}
}

func TestOverDeductionIsDropped(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 3, 0, 10)
	mustDeduct(t, l, 10, 1)
	mustGrant(t, l, 4, 5, 20)

	if got := l.BalanceAt(2); got != 0 {
		t.Fatalf("BalanceAt(2) = %d, want 0", got)
	}
	// The unpaid 7 is not carried against the later grant.
	if got := l.BalanceAt(6); got != 4 {
		t.Fatalf("BalanceAt(6) = %d, want 4", got)
	}

	st := l.StatementAt(6)
	if len(st.Deductions) != 1 {
		t.Fatalf("expected 1 deduction result, got %d", len(st.Deductions))
	}
	if st.Deductions[0].Applied != 3 || st.Deductions[0].Shortfall != 7 {
		t.Fatalf("expected applied=3 shortfall=7, got applied=%d shortfall=%d", st.Deductions[0].Applied, st.Deductions[0].Shortfall)
	}
}

func TestDeductionOutsideAnyWindow(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 10, 20)
	mustDeduct(t, l, 2, 5)
	mustDeduct(t, l, 2, 20)

	if got := l.BalanceAt(15); got != 5 {
		t.Fatalf("BalanceAt(15) = %d, want 5", got)
	}
	if got := l.BalanceAt(20); got != 0 {
		t.Fatalf("BalanceAt(20) = %d, want 0 (grant expired at 20)", got)
	}
}

func TestExpiryTieBrokenByActivation(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 2, 10)
	mustGrant(t, l, 5, 1, 10)
	mustDeduct(t, l, 3, 4)

	st := l.StatementAt(4)
	if len(st.Deductions[0].Draws) != 1 {
		t.Fatalf("expected a single draw, got %+v", st.Deductions[0].Draws)
	}
	draw := st.Deductions[0].Draws[0]
	if draw.GrantIndex != 1 || draw.Amount != 3 {
		t.Fatalf("expected draw of 3 from the grant activated at 1, got %+v", draw)
	}
}

func TestStatementBreakdown(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 0, 10)
	mustGrant(t, l, 6, 1, 5)
	mustGrant(t, l, 9, 50, 60)
	mustDeduct(t, l, 8, 3)

	st := l.StatementAt(6)
	if st.Balance != l.BalanceAt(6) {
		t.Fatalf("statement balance %d disagrees with BalanceAt %d", st.Balance, l.BalanceAt(6))
	}
	if len(st.Grants) != 2 {
		t.Fatalf("expected 2 grants in working set, got %d", len(st.Grants))
	}

	first, second := st.Grants[0], st.Grants[1]
	if first.Remaining != 3 || first.Consumed != 2 || first.Expired {
		t.Fatalf("unexpected state for first grant: %+v", first)
	}
	if second.Remaining != 0 || second.Consumed != 6 || !second.Expired {
		t.Fatalf("unexpected state for second grant: %+v", second)
	}

	draws := st.Deductions[0].Draws
	if len(draws) != 2 || draws[0].GrantIndex != 1 || draws[0].Amount != 6 || draws[1].GrantIndex != 0 || draws[1].Amount != 2 {
		t.Fatalf("unexpected draws: %+v", draws)
	}
}

func TestQueryDoesNotMutateStoredGrants(t *testing.T) {
	l := NewLedger()
	mustGrant(t, l, 5, 0, 10)
	mustDeduct(t, l, 4, 1)

	for i := 0; i < 3; i++ {
		if got := l.BalanceAt(5); got != 1 {
			t.Fatalf("call %d: BalanceAt(5) = %d, want 1", i, got)
		}
	}
	if got := l.BalanceAt(0); got != 5 {
		t.Fatalf("BalanceAt(0) after later queries = %d, want 5", got)
	}
	if g := l.Grants()[0]; g.Amount != 5 {
		t.Fatalf("stored grant amount changed to %d", g.Amount)
	}
}

func TestAddGrantValidation(t *testing.T) {
	l := NewLedger()

	cases := []struct {
		name                string
		amount, start, stop int64
	}{
		{"negative amount", -1, 0, 10},
		{"zero duration", 5, 10, 10},
		{"negative duration", 5, 10, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := l.AddGrant(tc.amount, tc.start, tc.stop); !errors.Is(err, ErrInvalidGrant) {
				t.Fatalf("expected ErrInvalidGrant, got %v", err)
			}
		})
	}

	if err := l.AddGrant(0, 0, 1); err != nil {
		t.Fatalf("zero-amount grant should be accepted, got %v", err)
	}
	if n := len(l.Grants()); n != 1 {
		t.Fatalf("expected only the valid grant to be stored, got %d", n)
	}
}

func TestAddDeductionValidation(t *testing.T) {
	l := NewLedger()
	for _, amount := range []int64{0, -3} {
		if err := l.AddDeduction(amount, 1); !errors.Is(err, ErrInvalidDeduction) {
			t.Fatalf("amount %d: expected ErrInvalidDeduction, got %v", amount, err)
		}
	}
	if n := len(l.Deductions()); n != 0 {
		t.Fatalf("expected no stored deductions, got %d", n)
	}
}

type event struct {
	grant  bool
	amount int64
	start  int64
	stop   int64
}

func TestInsertionOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		events := randomEvents(rng, 12)
		reference := replay(t, events)

		for p := 0; p < 5; p++ {
			shuffled := append([]event(nil), events...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			permuted := replay(t, shuffled)

			for at := int64(-2); at <= 40; at++ {
				want, got := reference.BalanceAt(at), permuted.BalanceAt(at)
				if want != got {
					t.Fatalf("round %d: BalanceAt(%d) differs across insertion orders: %d vs %d", round, at, want, got)
				}
				if got < 0 {
					t.Fatalf("round %d: negative balance %d at %d", round, got, at)
				}
			}
		}
	}
}

func TestQueryOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := replay(t, randomEvents(rng, 15))

	first := make(map[int64]int64)
	for at := int64(0); at <= 40; at++ {
		first[at] = l.BalanceAt(at)
	}
	for at := int64(40); at >= 0; at-- {
		if got := l.BalanceAt(at); got != first[at] {
			t.Fatalf("BalanceAt(%d) = %d on second pass, want %d", at, got, first[at])
		}
	}
}

func randomEvents(rng *rand.Rand, n int) []event {
	events := make([]event, 0, n)
	for i := 0; i < n; i++ {
		start := rng.Int63n(30)
		if rng.Intn(2) == 0 {
			events = append(events, event{grant: true, amount: rng.Int63n(10), start: start, stop: start + 1 + rng.Int63n(10)})
		} else {
			events = append(events, event{amount: 1 + rng.Int63n(8), start: start})
		}
	}
	return events
}

func replay(t *testing.T, events []event) *Ledger {
	t.Helper()
	l := NewLedger()
	for _, e := range events {
		if e.grant {
			mustGrant(t, l, e.amount, e.start, e.stop)
		} else {
			mustDeduct(t, l, e.amount, e.start)
		}
	}
	return l
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := l.AddGrant(2, int64(i), int64(i)+100); err != nil {
				t.Errorf("AddGrant: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if got := l.BalanceAt(int64(i)); got < 0 {
				t.Errorf("BalanceAt(%d) = %d, want >= 0", i, got)
			}
		}(i)
	}
	wg.Wait()

	if got := l.BalanceAt(50); got != 40 {
		t.Fatalf("BalanceAt(50) = %d, want 40", got)
	}
}

func mustGrant(t *testing.T, l *Ledger, amount, effectiveAt, expiresAt int64) {
	t.Helper()
	if err := l.AddGrant(amount, effectiveAt, expiresAt); err != nil {
		t.Fatalf("AddGrant(%d, %d, %d) failed: %v", amount, effectiveAt, expiresAt, err)
	}
}

func mustDeduct(t *testing.T, l *Ledger, amount, effectiveAt int64) {
	t.Helper()
	if err := l.AddDeduction(amount, effectiveAt); err != nil {
		t.Fatalf("AddDeduction(%d, %d) failed: %v", amount, effectiveAt, err)
	}
}
