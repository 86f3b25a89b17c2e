package sessionvault

import "github.com/goliatone/go-sessionvault/core"

type Config = core.Config

type RetryConfig = core.RetryConfig

type VerificationPolicy = core.VerificationPolicy

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type AccountRecord = core.AccountRecord
type AccountStatus = core.AccountStatus
type CanonicalSession = core.CanonicalSession
type CheckResult = core.CheckResult
type DestroyAuditEntry = core.DestroyAuditEntry
type DestroyOutcome = core.DestroyOutcome
type EncryptedBlob = core.EncryptedBlob
type RawUpload = core.RawUpload
type SessionImporter = core.SessionImporter
type SessionSealer = core.SessionSealer
type NetworkClient = core.NetworkClient
type KeyRotator = core.KeyRotator
type TransferPackage = core.TransferPackage

type SubmitUploadInput = core.SubmitUploadInput
type SubmitUploadResult = core.SubmitUploadResult
type ReviewSignal = core.ReviewSignal
type AttachPriceInput = core.AttachPriceInput
type ReserveInput = core.ReserveInput
type PaymentConfirmedInput = core.PaymentConfirmedInput

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSessionImporter   = core.WithSessionImporter
	WithSessionSealer     = core.WithSessionSealer
	WithSessionCodec      = core.WithSessionCodec
	WithKeyRotator        = core.WithKeyRotator
	WithNetworkClient     = core.WithNetworkClient
	WithAccountLocker     = core.WithAccountLocker
	WithAdminAlerter      = core.WithAdminAlerter
	WithAccountStore      = core.WithAccountStore
	WithKeyStore          = core.WithKeyStore
	WithDestroyAuditStore = core.WithDestroyAuditStore
	WithOutboxStore       = core.WithOutboxStore
	WithProxyStore        = core.WithProxyStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
