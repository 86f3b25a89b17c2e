package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-sessionvault/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DestroyAuditStore struct {
	db   *bun.DB
	repo repository.Repository[*destroyAuditRecord]
}

func NewDestroyAuditStore(db *bun.DB) (*DestroyAuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*destroyAuditRecord](db, destroyAuditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid destroy audit repository wiring: %w", err)
		}
	}
	return &DestroyAuditStore{db: db, repo: repo}, nil
}

// Append inserts one attempt entry. Entries are immutable; there is no update
// or delete path.
func (s *DestroyAuditStore) Append(ctx context.Context, entry core.DestroyAuditEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: destroy audit store is not configured")
	}
	if strings.TrimSpace(entry.AccountID) == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	if strings.TrimSpace(string(entry.Outcome)) == "" {
		return fmt.Errorf("sqlstore: destroy outcome is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.repo.Create(ctx, newDestroyAuditRecord(entry))
	return err
}

func (s *DestroyAuditStore) ListByAccount(ctx context.Context, accountID string) ([]core.DestroyAuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: destroy audit store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("sqlstore: account id is required")
	}
	var records []*destroyAuditRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("account_id = ?", accountID).
		Order("attempt ASC").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]core.DestroyAuditEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	return entries, nil
}

var _ core.DestroyAuditStore = (*DestroyAuditStore)(nil)
