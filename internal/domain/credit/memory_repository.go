package credit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryAccount struct {
	version         int64
	exportedVersion int64
	updatedAt       time.Time
	grants          []GrantEvent
	deductions      []DeductionEvent
}

// MemoryRepository is an in-process Repository, used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	seq      int64
	accounts map[uuid.UUID]*memoryAccount
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[uuid.UUID]*memoryAccount)}
}

func (r *MemoryRepository) InsertGrant(_ context.Context, e *GrantEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc := r.touch(e.AccountID)
	r.seq++
	e.Seq = r.seq
	e.CreatedAt = acc.updatedAt
	acc.grants = append(acc.grants, *e)
	return acc.version, nil
}

func (r *MemoryRepository) InsertDeduction(_ context.Context, e *DeductionEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc := r.touch(e.AccountID)
	r.seq++
	e.Seq = r.seq
	e.CreatedAt = acc.updatedAt
	acc.deductions = append(acc.deductions, *e)
	return acc.version, nil
}

// touch must be called with the write lock held.
func (r *MemoryRepository) touch(accountID uuid.UUID) *memoryAccount {
	acc, ok := r.accounts[accountID]
	if !ok {
		acc = &memoryAccount{}
		r.accounts[accountID] = acc
	}
	acc.version++
	acc.updatedAt = time.Now()
	return acc
}

func (r *MemoryRepository) ListEvents(_ context.Context, accountID uuid.UUID) (*EventSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := &EventSet{
		AccountID:  accountID,
		Grants:     make([]GrantEvent, 0),
		Deductions: make([]DeductionEvent, 0),
	}
	if acc, ok := r.accounts[accountID]; ok {
		set.Version = acc.version
		set.Grants = append(set.Grants, acc.grants...)
		set.Deductions = append(set.Deductions, acc.deductions...)
	}
	return set, nil
}

func (r *MemoryRepository) Version(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if acc, ok := r.accounts[accountID]; ok {
		return acc.version, nil
	}
	return 0, nil
}

func (r *MemoryRepository) ListUnexported(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	ids := make([]uuid.UUID, 0)
	for id, acc := range r.accounts {
		if acc.exportedVersion < acc.version {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return r.accounts[a].updatedAt.Compare(r.accounts[b].updatedAt)
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *MemoryRepository) MarkExported(_ context.Context, accountID uuid.UUID, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.accounts[accountID]; ok && version > acc.exportedVersion {
		acc.exportedVersion = version
	}
	return nil
}
