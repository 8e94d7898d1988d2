package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// service implements the Service interface
type service struct {
	repo     Repository
	cache    BalanceCache
	notifier Notifier
}

// NewService creates a new credit service. cache and notifier may be nil.
func NewService(repo Repository, cache BalanceCache, notifier Notifier) Service {
	return &service{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
	}
}

func (s *service) AddGrant(ctx context.Context, accountID uuid.UUID, in GrantInput) (*GrantEvent, error) {
	if accountID == uuid.Nil {
		return nil, ErrInvalidAccount
	}

	g, err := NewGrant(in.Amount, in.EffectiveAt, in.ExpiresAt)
	if err != nil {
		return nil, err
	}

	event := &GrantEvent{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      g.Amount,
		EffectiveAt: g.EffectiveAt,
		ExpiresAt:   g.ExpiresAt,
	}

	version, err := s.repo.InsertGrant(ctx, event)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, accountID)
	log.Info().
		Str("account_id", accountID.String()).
		Str("grant_id", event.ID.String()).
		Int64("amount", event.Amount).
		Int64("effective_at", event.EffectiveAt).
		Int64("expires_at", event.ExpiresAt).
		Int64("version", version).
		Msg("credit grant recorded")

	return event, nil
}

func (s *service) AddDeduction(ctx context.Context, accountID uuid.UUID, in DeductionInput) (*DeductionEvent, error) {
	if accountID == uuid.Nil {
		return nil, ErrInvalidAccount
	}

	d, err := NewDeduction(in.Amount, in.EffectiveAt)
	if err != nil {
		return nil, err
	}

	event := &DeductionEvent{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      d.Amount,
		EffectiveAt: d.EffectiveAt,
	}

	version, err := s.repo.InsertDeduction(ctx, event)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, accountID)
	log.Info().
		Str("account_id", accountID.String()).
		Str("deduction_id", event.ID.String()).
		Int64("amount", event.Amount).
		Int64("effective_at", event.EffectiveAt).
		Int64("version", version).
		Msg("credit deduction recorded")

	return event, nil
}

func (s *service) BalanceAt(ctx context.Context, accountID uuid.UUID, at int64) (int64, error) {
	if accountID == uuid.Nil {
		return 0, ErrInvalidAccount
	}

	if s.cache != nil {
		version, err := s.repo.Version(ctx, accountID)
		if err != nil {
			return 0, err
		}
		balance, ok, err := s.cache.Get(ctx, accountID, version, at)
		if err != nil {
			log.Warn().Err(err).Str("account_id", accountID.String()).Msg("balance cache read failed")
		} else if ok {
			return balance, nil
		}
	}

	set, err := s.repo.ListEvents(ctx, accountID)
	if err != nil {
		return 0, err
	}

	ledger, err := ReplayEvents(set)
	if err != nil {
		return 0, err
	}

	balance := ledger.BalanceAt(at)

	if s.cache != nil {
		if err := s.cache.Set(ctx, accountID, set.Version, at, balance); err != nil {
			log.Warn().Err(err).Str("account_id", accountID.String()).Msg("balance cache write failed")
		}
	}

	return balance, nil
}

func (s *service) StatementAt(ctx context.Context, accountID uuid.UUID, at int64) (*AccountStatement, error) {
	if accountID == uuid.Nil {
		return nil, ErrInvalidAccount
	}

	set, err := s.repo.ListEvents(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ledger, err := ReplayEvents(set)
	if err != nil {
		return nil, err
	}

	return &AccountStatement{
		AccountID: accountID,
		Version:   set.Version,
		Statement: ledger.StatementAt(at),
	}, nil
}

func (s *service) ListEvents(ctx context.Context, accountID uuid.UUID) (*EventSet, error) {
	if accountID == uuid.Nil {
		return nil, ErrInvalidAccount
	}
	return s.repo.ListEvents(ctx, accountID)
}

func (s *service) publish(ctx context.Context, accountID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID.String()).Msg("credit event notification failed")
	}
}

// ReplayEvents rebuilds a Ledger from stored events in insertion order.
// Stored events that fail validation are reported as ErrInternal.
func ReplayEvents(set *EventSet) (*Ledger, error) {
	ledger := NewLedger()
	for _, g := range set.Grants {
		if err := ledger.AddGrant(g.Amount, g.EffectiveAt, g.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: stored grant %s: %v", ErrInternal, g.ID, err)
		}
	}
	for _, d := range set.Deductions {
		if err := ledger.AddDeduction(d.Amount, d.EffectiveAt); err != nil {
			return nil, fmt.Errorf("%w: stored deduction %s: %v", ErrInternal, d.ID, err)
		}
	}
	return ledger, nil
}
