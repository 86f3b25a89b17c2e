package sqlstore

import (
	"time"

	"github.com/goliatone/go-sessionvault/core"
	"github.com/uptrace/bun"
)

type accountRecord struct {
	bun.BaseModel `bun:"table:vault_accounts,alias:va"`

	ID       string `bun:"id,pk"`
	SellerID string `bun:"seller_id,notnull"`
	BuyerID  string `bun:"buyer_id"`
	Status   string `bun:"status,notnull"`

	EncryptedPayload []byte `bun:"encrypted_payload"`
	KeyVersion       int    `bun:"key_version,notnull"`
	SourceFormat     string `bun:"source_format"`

	PhoneNumber     string  `bun:"phone_number"`
	MessagingUserID int64   `bun:"messaging_user_id"`
	DCID            int     `bun:"dc_id"`
	Price           float64 `bun:"price"`
	ProxyID         string  `bun:"proxy_id"`
	ImportAttempts  int     `bun:"import_attempts,notnull"`
	DestroyAttempts int     `bun:"destroy_attempts,notnull"`
	NeedsManualFix  bool    `bun:"needs_manual_fix,notnull"`
	StatusReason    string  `bun:"status_reason"`

	Checks   map[string]core.CheckResult `bun:"checks,type:jsonb"`
	Warnings []string                    `bun:"warnings,type:jsonb"`

	AdminReviewerID string `bun:"admin_reviewer_id"`
	AdminNotes      string `bun:"admin_notes"`

	UploadedAt       time.Time  `bun:"uploaded_at,notnull"`
	ImportedAt       *time.Time `bun:"imported_at,nullzero"`
	VerifiedAt       *time.Time `bun:"verified_at,nullzero"`
	ReviewedAt       *time.Time `bun:"reviewed_at,nullzero"`
	ListedAt         *time.Time `bun:"listed_at,nullzero"`
	ReservedAt       *time.Time `bun:"reserved_at,nullzero"`
	ReserveExpiresAt *time.Time `bun:"reserve_expires_at,nullzero"`
	SoldAt           *time.Time `bun:"sold_at,nullzero"`
	TransferredAt    *time.Time `bun:"transferred_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type encryptionKeyRecord struct {
	bun.BaseModel `bun:"table:vault_encryption_keys,alias:vek"`

	ID        string     `bun:"id,pk"`
	Version   int        `bun:"version,notnull,unique"`
	Material  []byte     `bun:"material"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	RetiredAt *time.Time `bun:"retired_at,nullzero"`
	PurgedAt  *time.Time `bun:"purged_at,nullzero"`
}

type destroyAuditRecord struct {
	bun.BaseModel `bun:"table:vault_destroy_audit,alias:vda"`

	ID        string    `bun:"id,pk"`
	AccountID string    `bun:"account_id,notnull"`
	Attempt   int       `bun:"attempt,notnull"`
	Outcome   string    `bun:"outcome,notnull"`
	Detail    string    `bun:"detail"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type outboxEventRecord struct {
	bun.BaseModel `bun:"table:vault_outbox,alias:vo"`

	ID            string         `bun:"id,pk"`
	EventName     string         `bun:"event_name,notnull"`
	AccountID     string         `bun:"account_id"`
	Payload       map[string]any `bun:"payload,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError     string         `bun:"last_error"`
	DispatchedAt  *time.Time     `bun:"dispatched_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type proxyRecord struct {
	bun.BaseModel `bun:"table:vault_proxies,alias:vp"`

	ID        string    `bun:"id,pk"`
	Address   string    `bun:"address,notnull"`
	Capacity  int       `bun:"capacity,notnull"`
	Assigned  int       `bun:"assigned,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
