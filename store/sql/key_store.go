package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-sessionvault/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type KeyStore struct {
	db   *bun.DB
	repo repository.Repository[*encryptionKeyRecord]
}

func NewKeyStore(db *bun.DB) (*KeyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*encryptionKeyRecord](db, encryptionKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid key repository wiring: %w", err)
		}
	}
	return &KeyStore{db: db, repo: repo}, nil
}

func (s *KeyStore) Save(ctx context.Context, record core.EncryptionKeyRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: key store is not configured")
	}
	if record.Version < 1 {
		return fmt.Errorf("sqlstore: key version must be positive")
	}
	if len(record.Material) == 0 {
		return fmt.Errorf("sqlstore: key material is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.repo.Create(ctx, newEncryptionKeyRecord(uuid.NewString(), record))
	return err
}

func (s *KeyStore) List(ctx context.Context) ([]core.EncryptionKeyRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: key store is not configured")
	}
	var records []*encryptionKeyRecord
	err := s.db.NewSelect().
		Model(&records).
		Order("version ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]core.EncryptionKeyRecord, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.toDomain())
	}
	return keys, nil
}

func (s *KeyStore) Retire(ctx context.Context, version int, retiredAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: key store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*encryptionKeyRecord)(nil)).
		Set("retired_at = ?", retiredAt.UTC()).
		Where("version = ?", version).
		Where("retired_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: key version %d not found or already retired", version)
	}
	return nil
}

// MarkPurged zeroes the persisted material and leaves a version tombstone so
// later lookups fail loudly instead of silently reusing a destroyed key slot.
func (s *KeyStore) MarkPurged(ctx context.Context, version int, purgedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: key store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*encryptionKeyRecord)(nil)).
		Set("material = ?", []byte{}).
		Set("purged_at = ?", purgedAt.UTC()).
		Where("version = ?", version).
		Where("purged_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: key version %d not found or already purged", version)
	}
	return nil
}

var _ core.KeyStore = (*KeyStore)(nil)
