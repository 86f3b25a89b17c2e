package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-sessionvault/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ProxyStore struct {
	db   *bun.DB
	repo repository.Repository[*proxyRecord]
}

func NewProxyStore(db *bun.DB) (*ProxyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*proxyRecord](db, proxyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid proxy repository wiring: %w", err)
		}
	}
	return &ProxyStore{db: db, repo: repo}, nil
}

// Register adds a proxy to the pool. Capacity zero means unbounded.
func (s *ProxyStore) Register(ctx context.Context, address string, capacity int) (core.Proxy, error) {
	if s == nil || s.repo == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy store is not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy address is required")
	}
	now := time.Now().UTC()
	record := &proxyRecord{
		ID:        uuid.NewString(),
		Address:   address,
		Capacity:  capacity,
		Assigned:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Proxy{}, err
	}
	return created.toDomain(), nil
}

// AcquireSlot assigns the least-loaded proxy with free capacity. The
// increment is fenced on the observed assignment count so two racing
// acquisitions cannot oversubscribe a slot.
func (s *ProxyStore) AcquireSlot(ctx context.Context, accountID string) (core.Proxy, error) {
	if s == nil || s.db == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy store is not configured")
	}

	var acquired core.Proxy
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(proxyRecord)
		err := tx.NewSelect().
			Model(record).
			Where("capacity <= 0 OR assigned < capacity").
			Order("assigned ASC").
			Order("created_at ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sqlstore: no proxy with free capacity: %w", core.ErrInvalidProxyAssignment)
			}
			return err
		}

		result, err := tx.NewUpdate().
			Model((*proxyRecord)(nil)).
			Set("assigned = assigned + 1").
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", record.ID).
			Where("assigned = ?", record.Assigned).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("sqlstore: proxy %q changed concurrently: %w", record.ID, core.ErrInvalidProxyAssignment)
		}
		record.Assigned++
		acquired = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Proxy{}, err
	}
	return acquired, nil
}

func (s *ProxyStore) ReleaseSlot(ctx context.Context, proxyID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: proxy store is not configured")
	}
	proxyID = strings.TrimSpace(proxyID)
	if proxyID == "" {
		return fmt.Errorf("sqlstore: proxy id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*proxyRecord)(nil)).
		Set("assigned = assigned - 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", proxyID).
		Where("assigned > 0").
		Exec(ctx)
	return err
}

var _ core.ProxyStore = (*ProxyStore)(nil)
