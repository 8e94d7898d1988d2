package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository stores the append-only event streams of every account.
type Repository interface {
	// InsertGrant stores a grant and returns the new account version.
	InsertGrant(ctx context.Context, e *GrantEvent) (int64, error)
	// InsertDeduction stores a deduction and returns the new account version.
	InsertDeduction(ctx context.Context, e *DeductionEvent) (int64, error)
	// ListEvents returns all events of an account in insertion order.
	// Unknown accounts yield an empty set at version 0.
	ListEvents(ctx context.Context, accountID uuid.UUID) (*EventSet, error)
	// Version returns the current account version (0 when unknown).
	Version(ctx context.Context, accountID uuid.UUID) (int64, error)
	// ListUnexported returns accounts whose latest version has no statement export.
	ListUnexported(ctx context.Context, limit int) ([]uuid.UUID, error)
	// MarkExported records that a statement for version was exported.
	MarkExported(ctx context.Context, accountID uuid.UUID, version int64) error
}

// PostgresRepository keeps events in PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertGrant(ctx context.Context, e *GrantEvent) (int64, error) {
	return r.insert(ctx, e.AccountID, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `
			INSERT INTO credit_grants (id, account_id, amount, effective_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING seq, created_at
		`, e.ID, e.AccountID, e.Amount, e.EffectiveAt, e.ExpiresAt).Scan(&e.Seq, &e.CreatedAt)
	})
}

func (r *PostgresRepository) InsertDeduction(ctx context.Context, e *DeductionEvent) (int64, error) {
	return r.insert(ctx, e.AccountID, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, `
			INSERT INTO credit_deductions (id, account_id, amount, effective_at)
			VALUES ($1, $2, $3, $4)
			RETURNING seq, created_at
		`, e.ID, e.AccountID, e.Amount, e.EffectiveAt).Scan(&e.Seq, &e.CreatedAt)
	})
}

// insert runs the event insert and the version bump in one transaction.
func (r *PostgresRepository) insert(ctx context.Context, accountID uuid.UUID, write func(tx *sqlx.Tx) error) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	if err := write(tx); err != nil {
		var pqErr *pq.Error
		// 23514 check_violation: the stored constraints mirror NewGrant/NewDeduction.
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return 0, fmt.Errorf("%w: %s", ErrInternal, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: insert event: %v", ErrInternal, err)
	}

	var version int64
	err = tx.GetContext(ctx, &version, `
		INSERT INTO credit_accounts (account_id, version, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (account_id) DO UPDATE
		SET version = credit_accounts.version + 1, updated_at = now()
		RETURNING version
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: bump account version: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}

	return version, nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, accountID uuid.UUID) (*EventSet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Repeatable read so the version matches the events returned.
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	set := &EventSet{
		AccountID:  accountID,
		Grants:     make([]GrantEvent, 0),
		Deductions: make([]DeductionEvent, 0),
	}

	err = tx.GetContext(ctx, &set.Version, `SELECT version FROM credit_accounts WHERE account_id = $1`, accountID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: get account version: %v", ErrInternal, err)
	}

	err = tx.SelectContext(ctx, &set.Grants, `
		SELECT id, account_id, amount, effective_at, expires_at, seq, created_at
		FROM credit_grants
		WHERE account_id = $1
		ORDER BY seq
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", ErrInternal, err)
	}

	err = tx.SelectContext(ctx, &set.Deductions, `
		SELECT id, account_id, amount, effective_at, seq, created_at
		FROM credit_deductions
		WHERE account_id = $1
		ORDER BY seq
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list deductions: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}

	return set, nil
}

func (r *PostgresRepository) Version(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var version int64
	err := r.db.GetContext(ctx, &version, `SELECT version FROM credit_accounts WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: get account version: %v", ErrInternal, err)
	}

	return version, nil
}

func (r *PostgresRepository) ListUnexported(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	ids := make([]uuid.UUID, 0)
	err := r.db.SelectContext(ctx, &ids, `
		SELECT account_id
		FROM credit_accounts
		WHERE exported_version < version
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list unexported accounts: %v", ErrInternal, err)
	}

	return ids, nil
}

func (r *PostgresRepository) MarkExported(ctx context.Context, accountID uuid.UUID, version int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_accounts
		SET exported_version = GREATEST(exported_version, $2)
		WHERE account_id = $1
	`, accountID, version)
	if err != nil {
		return fmt.Errorf("%w: mark exported: %v", ErrInternal, err)
	}

	return nil
}
