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

type AccountStore struct {
	db   *bun.DB
	repo repository.Repository[*accountRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{db: db, repo: repo}, nil
}

func (s *AccountStore) Create(ctx context.Context, account core.AccountRecord) (core.AccountRecord, error) {
	if s == nil || s.repo == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	if strings.TrimSpace(account.ID) == "" {
		account.ID = uuid.NewString()
	}
	if strings.TrimSpace(account.SellerID) == "" {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: seller id is required")
	}
	if strings.TrimSpace(string(account.Status)) == "" {
		account.Status = core.AccountStatusUploaded
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}
	if account.UploadedAt.IsZero() {
		account.UploadedAt = now
	}

	created, err := s.repo.Create(ctx, newAccountRecord(account))
	if err != nil {
		return core.AccountRecord{}, err
	}
	return created.toDomain(), nil
}

func (s *AccountStore) Get(ctx context.Context, id string) (core.AccountRecord, error) {
	if s == nil || s.db == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: account id is required")
	}
	record := new(accountRecord)
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AccountRecord{}, fmt.Errorf("sqlstore: account %q not found: %w", id, core.ErrAccountNotFound)
		}
		return core.AccountRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *AccountStore) ListByStatus(ctx context.Context, status core.AccountStatus, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func (s *AccountStore) ListBySeller(ctx context.Context, sellerID string, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("seller_id", "=", strings.TrimSpace(sellerID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

// UpdateStatusCAS applies one guarded transition. The row update is fenced on
// the expected status so two racing workers cannot both win; the loser gets a
// stale-transition error and must re-read.
func (s *AccountStore) UpdateStatusCAS(ctx context.Context, update core.StatusUpdate) (core.AccountRecord, error) {
	if s == nil || s.db == nil {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	accountID := strings.TrimSpace(update.AccountID)
	if accountID == "" {
		return core.AccountRecord{}, fmt.Errorf("sqlstore: account id is required")
	}

	var updated core.AccountRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(accountRecord)
		if err := tx.NewSelect().Model(record).Where("?TableAlias.id = ?", accountID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sqlstore: account %q not found: %w", accountID, core.ErrAccountNotFound)
			}
			return err
		}

		account := record.toDomain()
		if account.Status != update.Expected {
			return core.NewStaleTransitionError(
				fmt.Sprintf("account %s is %s, expected %s", accountID, account.Status, update.Expected),
			)
		}

		now := time.Now().UTC()
		if err := account.TransitionTo(update.Next, update.Reason, now); err != nil {
			return core.NewStaleTransitionError(err.Error())
		}
		applyStatusUpdate(&account, update)

		next := newAccountRecord(account)
		result, err := tx.NewUpdate().
			Model(next).
			WherePK().
			Where("status = ?", string(update.Expected)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return core.NewStaleTransitionError(
				fmt.Sprintf("account %s changed concurrently, expected %s", accountID, update.Expected),
			)
		}
		updated = account
		return nil
	})
	if err != nil {
		return core.AccountRecord{}, err
	}
	return updated, nil
}

func applyStatusUpdate(account *core.AccountRecord, update core.StatusUpdate) {
	if trimmed := strings.TrimSpace(update.BuyerID); trimmed != "" {
		account.BuyerID = trimmed
	}
	if update.Price > 0 {
		account.Price = update.Price
	}
	if trimmed := strings.TrimSpace(update.ProxyID); trimmed != "" {
		account.ProxyID = trimmed
	}
	if update.ImportAttempts > 0 {
		account.ImportAttempts = update.ImportAttempts
	}
	if update.DestroyAttempts > 0 {
		account.DestroyAttempts = update.DestroyAttempts
	}
	if len(update.Checks) > 0 {
		account.Checks = update.Checks
	}
	if len(update.Warnings) > 0 {
		account.Warnings = update.Warnings
	}
	if update.ReserveExpiresAt != nil {
		account.ReserveExpiresAt = update.ReserveExpiresAt
	}
	if update.Blob != nil {
		account.EncryptedPayload = update.Blob.Payload
		account.KeyVersion = update.Blob.KeyVersion
	}
	if trimmed := strings.TrimSpace(update.SourceFormat); trimmed != "" {
		account.SourceFormat = trimmed
	}
	if trimmed := strings.TrimSpace(update.PhoneNumber); trimmed != "" {
		account.PhoneNumber = trimmed
	}
	if update.MessagingUserID != 0 {
		account.MessagingUserID = update.MessagingUserID
	}
	if update.DCID != 0 {
		account.DCID = update.DCID
	}
}

func (s *AccountStore) ReplaceBlob(ctx context.Context, accountID string, blob core.EncryptedBlob) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	if len(blob.Payload) == 0 {
		return fmt.Errorf("sqlstore: encrypted payload is required")
	}
	result, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("encrypted_payload = ?", blob.Payload).
		Set("key_version = ?", blob.KeyVersion).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: account %q not found: %w", accountID, core.ErrAccountNotFound)
	}
	return nil
}

func (s *AccountStore) SetNeedsManualFix(ctx context.Context, accountID string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("needs_manual_fix = ?", true).
		Set("status_reason = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", accountID).
		Exec(ctx)
	return err
}

// RecordDestroyAttempts stores the cumulative destroy attempt count so audit
// numbering and alerting survive across invocations.
func (s *AccountStore) RecordDestroyAttempts(ctx context.Context, accountID string, attempts int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	if attempts < 0 {
		return fmt.Errorf("sqlstore: destroy attempts must not be negative")
	}
	_, err := s.db.NewUpdate().
		Model((*accountRecord)(nil)).
		Set("destroy_attempts = ?", attempts).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", accountID).
		Exec(ctx)
	return err
}

func (s *AccountStore) ListReservationExpired(ctx context.Context, asOf time.Time, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*accountRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("status = ?", string(core.AccountStatusReserved)).
		Where("reserve_expires_at IS NOT NULL").
		Where("reserve_expires_at <= ?", asOf.UTC()).
		Order("reserve_expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func (s *AccountStore) ListListingExpired(ctx context.Context, before time.Time, limit int) ([]core.AccountRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: account store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*accountRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("status = ?", string(core.AccountStatusListed)).
		Where("listed_at IS NOT NULL").
		Where("listed_at <= ?", before.UTC()).
		Order("listed_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func recordsToDomain(records []*accountRecord) []core.AccountRecord {
	accounts := make([]core.AccountRecord, 0, len(records))
	for _, record := range records {
		accounts = append(accounts, record.toDomain())
	}
	return accounts
}

var _ core.AccountStore = (*AccountStore)(nil)
