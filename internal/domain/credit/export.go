package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ObjectStore is the slice of object storage the exporter needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
}

// Exporter writes account statements to object storage whenever an
// account's version moves past its last export.
type Exporter struct {
	svc   Service
	repo  Repository
	store ObjectStore
	now   func() time.Time
}

func NewExporter(svc Service, repo Repository, store ObjectStore) *Exporter {
	return &Exporter{svc: svc, repo: repo, store: store, now: time.Now}
}

// StatementKey is the object key of an account statement at a version.
func StatementKey(accountID uuid.UUID, version int64) string {
	return fmt.Sprintf("statements/%s/%d.json", accountID, version)
}

// ExportAccount writes the statement as of now for one account.
func (e *Exporter) ExportAccount(ctx context.Context, accountID uuid.UUID) error {
	stmt, err := e.svc.StatementAt(ctx, accountID, e.now().Unix())
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	if stmt.Version == 0 {
		return nil
	}

	// Statements are immutable per version; an object left by a pass that
	// failed before MarkExported only needs the mark.
	key := StatementKey(accountID, stmt.Version)
	exists, err := e.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check statement: %w", err)
	}

	if !exists {
		body, err := json.Marshal(stmt)
		if err != nil {
			return fmt.Errorf("encode statement: %w", err)
		}
		if err := e.store.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
			return fmt.Errorf("upload statement: %w", err)
		}
	}

	if err := e.repo.MarkExported(ctx, accountID, stmt.Version); err != nil {
		return err
	}

	log.Info().
		Str("account_id", accountID.String()).
		Int64("version", stmt.Version).
		Int64("balance", stmt.Balance).
		Str("url", e.store.URL(key)).
		Bool("reused", exists).
		Msg("statement exported")
	return nil
}

// ExportPending exports up to limit accounts with unexported versions and
// returns how many succeeded. Per-account failures are logged and skipped.
func (e *Exporter) ExportPending(ctx context.Context, limit int) (int, error) {
	ids, err := e.repo.ListUnexported(ctx, limit)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := e.ExportAccount(ctx, id); err != nil {
			log.Error().Err(err).Str("account_id", id.String()).Msg("statement export failed")
			continue
		}
		exported++
	}
	return exported, nil
}
