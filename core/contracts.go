package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// RawUpload is the payload a seller submits: either a single blob or a small
// named-file bundle for multi-file formats. Detection and parsing never
// mutate it.
type RawUpload struct {
	SellerID string
	Data     []byte
	Bundle   map[string][]byte
	Name     string
}

// EncryptedBlob is the sealed canonical session persisted on the record.
type EncryptedBlob struct {
	Payload    []byte
	KeyVersion int
}

// SessionSealer is the versioned authenticated-encryption boundary. Decrypt
// reports Stale when a retired (grace-window) key served the read so callers
// can opportunistically re-seal under the active version.
type SessionSealer interface {
	Encrypt(ctx context.Context, plaintext []byte) (EncryptedBlob, error)
	Decrypt(ctx context.Context, blob EncryptedBlob) (plaintext []byte, stale bool, err error)
	ActiveVersion() int
}

// SessionImporter converts a raw upload into the canonical model. The format
// package provides the production implementation.
type SessionImporter interface {
	Import(upload RawUpload) (CanonicalSession, error)
}

// NetworkClient is the collaborator boundary to the messaging network. The
// wire protocol itself is out of scope; implementations live outside this
// module. All calls honor ctx cancellation.
type NetworkClient interface {
	CheckAuthorization(ctx context.Context, session CanonicalSession) error
	TwoFactorEnabled(ctx context.Context, session CanonicalSession) (bool, error)
	ActiveSessionCount(ctx context.Context, session CanonicalSession) (int, error)
	FloodWait(ctx context.Context, session CanonicalSession) (time.Duration, error)
	InvalidateSignInCodes(ctx context.Context, session CanonicalSession) error
	TerminateOtherSessions(ctx context.Context, session CanonicalSession) error
}

// AccountStore persists account records. UpdateStatusCAS performs the guarded
// transition: it must only apply when the stored status equals expected and
// report a stale-transition error otherwise.
type AccountStore interface {
	Create(ctx context.Context, record AccountRecord) (AccountRecord, error)
	Get(ctx context.Context, id string) (AccountRecord, error)
	ListByStatus(ctx context.Context, status AccountStatus, limit int) ([]AccountRecord, error)
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]AccountRecord, error)
	UpdateStatusCAS(ctx context.Context, update StatusUpdate) (AccountRecord, error)
	ReplaceBlob(ctx context.Context, accountID string, blob EncryptedBlob) error
	SetNeedsManualFix(ctx context.Context, accountID string, reason string) error
	RecordDestroyAttempts(ctx context.Context, accountID string, attempts int) error
	ListReservationExpired(ctx context.Context, asOf time.Time, limit int) ([]AccountRecord, error)
	ListListingExpired(ctx context.Context, before time.Time, limit int) ([]AccountRecord, error)
}

// StatusUpdate describes one compare-and-swap transition.
type StatusUpdate struct {
	AccountID string
	Expected  AccountStatus
	Next      AccountStatus
	Reason    string

	BuyerID          string
	Price            float64
	ImportAttempts   int
	DestroyAttempts  int
	Checks           map[string]CheckResult
	Warnings         []string
	ProxyID          string
	ReserveExpiresAt *time.Time
	Blob             *EncryptedBlob
	SourceFormat     string
	PhoneNumber      string
	MessagingUserID  int64
	DCID             int
}

// EncryptionKeyRecord is the persisted form of one keyring generation. Key
// material travels base64-encoded; PurgedAt marks versions whose material has
// been destroyed but whose version number is retained as a tombstone.
type EncryptionKeyRecord struct {
	Version   int
	Material  []byte
	CreatedAt time.Time
	RetiredAt *time.Time
	PurgedAt  *time.Time
}

// KeyRotator manages the versioned key hierarchy behind the sealer. The
// security package provides the production implementation.
type KeyRotator interface {
	Rotate(ctx context.Context) (oldVersion, newVersion int, retiredAt time.Time, err error)
	PurgeExpired(ctx context.Context) ([]int, error)
	ActiveVersion() int
	ActiveKeyCreatedAt() time.Time
}

type KeyStore interface {
	Save(ctx context.Context, record EncryptionKeyRecord) error
	List(ctx context.Context) ([]EncryptionKeyRecord, error)
	Retire(ctx context.Context, version int, retiredAt time.Time) error
	MarkPurged(ctx context.Context, version int, purgedAt time.Time) error
}

type DestroyAuditStore interface {
	Append(ctx context.Context, entry DestroyAuditEntry) error
	ListByAccount(ctx context.Context, accountID string) ([]DestroyAuditEntry, error)
}

type ProxyStore interface {
	AcquireSlot(ctx context.Context, accountID string) (Proxy, error)
	ReleaseSlot(ctx context.Context, proxyID string) error
}

// OutboxStore queues emitted events for at-least-once dispatch.
type OutboxStore interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimBatch(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkDispatched(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, reason string, nextAttemptAt time.Time) error
}

// EventSink receives dispatched lifecycle events. External collaborators
// (chat bots, admin alerting) register implementations.
type EventSink interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// AccountLocker grants the per-account lease serializing import/verify work.
// Leases expire so a crashed worker cannot wedge an account.
type AccountLocker interface {
	Acquire(ctx context.Context, accountID string, ttl time.Duration) (LeaseHandle, error)
}

type LeaseHandle interface {
	Release(ctx context.Context) error
}

// AdminAlerter is notified when an account needs human intervention.
type AdminAlerter interface {
	Alert(ctx context.Context, accountID string, message string) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// StoreProvider bundles the persistence stores a Service needs.
type StoreProvider interface {
	AccountStore() AccountStore
	KeyStore() KeyStore
	DestroyAuditStore() DestroyAuditStore
	OutboxStore() OutboxStore
	ProxyStore() ProxyStore
}

// RepositoryStoreFactory builds a StoreProvider against a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

// SubmitUploadInput starts the pipeline for one raw payload.
type SubmitUploadInput struct {
	SellerID string
	Upload   RawUpload
}

type SubmitUploadResult struct {
	Account AccountRecord
}

// ReviewSignal is the external admin approval or rejection.
type ReviewSignal struct {
	AccountID  string
	ReviewerID string
	Approve    bool
	Reason     string
}

// AttachPriceInput lists an approved account once pricing arrives.
type AttachPriceInput struct {
	AccountID string
	Price     float64
}

// ReserveInput records buyer purchase intent with a reservation timeout.
type ReserveInput struct {
	AccountID string
	BuyerID   string
	At        time.Time
}

// PaymentConfirmedInput moves a reservation to sold.
type PaymentConfirmedInput struct {
	AccountID string
	BuyerID   string
	At        time.Time
}

// TransferPackage is handed to the buyer after a successful transfer.
type TransferPackage struct {
	AccountID     string
	SessionString string
	PhoneNumber   string
	Checks        map[string]CheckResult
	Warnings      []string
}
