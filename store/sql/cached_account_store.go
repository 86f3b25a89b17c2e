package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-sessionvault/core"
)

const accountCacheKeyPrefix = "go-sessionvault::account::v1"

// CachedAccountStore fronts an AccountStore with a read-through cache on
// single-record lookups. Every write path invalidates the cached entry, so a
// stale read never outlives the next guarded transition.
type CachedAccountStore struct {
	base  core.AccountStore
	cache repositorycache.CacheService
}

func NewCachedAccountStore(base core.AccountStore, cacheService repositorycache.CacheService) (*CachedAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account cache service is required")
	}
	return &CachedAccountStore{base: base, cache: cacheService}, nil
}

// AccountCacheKey returns the deterministic cache key for one account read:
// go-sessionvault::account::v1::<account_id> with the id URL-path escaped.
func AccountCacheKey(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("sqlstore: account id is required")
	}
	return accountCacheKeyPrefix + "::" + url.PathEscape(accountID), nil
}

func (s *CachedAccountStore) Get(ctx context.Context, id string) (core.AccountRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	cacheKey, err := AccountCacheKey(id)
	if err != nil {
		return core.AccountRecord{}, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.AccountRecord, error) {
		return s.base.Get(ctx, id)
	})
	if err != nil {
		return core.AccountRecord{}, err
	}
	return record, nil
}

func (s *CachedAccountStore) Create(ctx context.Context, record core.AccountRecord) (core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.Create(ctx, record)
}

func (s *CachedAccountStore) ListByStatus(ctx context.Context, status core.AccountStatus, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListByStatus(ctx, status, limit)
}

func (s *CachedAccountStore) ListBySeller(ctx context.Context, sellerID string, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListBySeller(ctx, sellerID, limit)
}

func (s *CachedAccountStore) UpdateStatusCAS(ctx context.Context, update core.StatusUpdate) (core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	record, err := s.base.UpdateStatusCAS(ctx, update)
	if err != nil {
		return record, err
	}
	s.invalidate(ctx, update.AccountID)
	return record, nil
}

func (s *CachedAccountStore) ReplaceBlob(ctx context.Context, accountID string, blob core.EncryptedBlob) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.ReplaceBlob(ctx, accountID, blob); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	return nil
}

func (s *CachedAccountStore) SetNeedsManualFix(ctx context.Context, accountID string, reason string) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.SetNeedsManualFix(ctx, accountID, reason); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	return nil
}

func (s *CachedAccountStore) RecordDestroyAttempts(ctx context.Context, accountID string, attempts int) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.RecordDestroyAttempts(ctx, accountID, attempts); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	return nil
}

func (s *CachedAccountStore) ListReservationExpired(ctx context.Context, asOf time.Time, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListReservationExpired(ctx, asOf, limit)
}

func (s *CachedAccountStore) ListListingExpired(ctx context.Context, before time.Time, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return s.base.ListListingExpired(ctx, before, limit)
}

func (s *CachedAccountStore) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	cacheKey, err := AccountCacheKey(accountID)
	if err != nil {
		return
	}
	_ = s.cache.Delete(ctx, cacheKey)
}

var _ core.AccountStore = (*CachedAccountStore)(nil)
