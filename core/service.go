package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

var (
	ErrSealerNotConfigured   = errors.New("core: session sealer not configured")
	ErrImporterNotConfigured = errors.New("core: session importer not configured")
	ErrStoreNotConfigured    = errors.New("core: account store not configured")
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	importer          SessionImporter
	sealer            SessionSealer
	sessionCodec      SessionCodec
	keyRotator        KeyRotator
	networkClient     NetworkClient
	locker            AccountLocker
	alerter           AdminAlerter
	accountStore      AccountStore
	keyStore          KeyStore
	destroyAuditStore DestroyAuditStore
	outboxStore       OutboxStore
	proxyStore        ProxyStore
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SessionImporter   SessionImporter
	SessionSealer     SessionSealer
	SessionCodec      SessionCodec
	KeyRotator        KeyRotator
	NetworkClient     NetworkClient
	AccountLocker     AccountLocker
	AdminAlerter      AdminAlerter
	AccountStore      AccountStore
	KeyStore          KeyStore
	DestroyAuditStore DestroyAuditStore
	OutboxStore       OutboxStore
	ProxyStore        ProxyStore
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("sessionvault", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("sessionvault"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.sessionCodec == nil {
		builder.sessionCodec = JSONSessionCodec{}
	}
	if builder.locker == nil {
		builder.locker = NewMemoryAccountLocker()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.accountStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.accountStore = storeProvider.AccountStore()
				if builder.keyStore == nil {
					builder.keyStore = storeProvider.KeyStore()
				}
				if builder.destroyAuditStore == nil {
					builder.destroyAuditStore = storeProvider.DestroyAuditStore()
				}
				if builder.outboxStore == nil {
					builder.outboxStore = storeProvider.OutboxStore()
				}
				if builder.proxyStore == nil {
					builder.proxyStore = storeProvider.ProxyStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.accountStore = storeProvider.AccountStore()
			if builder.keyStore == nil {
				builder.keyStore = storeProvider.KeyStore()
			}
			if builder.destroyAuditStore == nil {
				builder.destroyAuditStore = storeProvider.DestroyAuditStore()
			}
			if builder.outboxStore == nil {
				builder.outboxStore = storeProvider.OutboxStore()
			}
			if builder.proxyStore == nil {
				builder.proxyStore = storeProvider.ProxyStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		importer:          builder.importer,
		sealer:            builder.sealer,
		sessionCodec:      builder.sessionCodec,
		keyRotator:        builder.keyRotator,
		networkClient:     builder.networkClient,
		locker:            builder.locker,
		alerter:           builder.alerter,
		accountStore:      builder.accountStore,
		keyStore:          builder.keyStore,
		destroyAuditStore: builder.destroyAuditStore,
		outboxStore:       builder.outboxStore,
		proxyStore:        builder.proxyStore,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SessionImporter:   s.importer,
		SessionSealer:     s.sealer,
		SessionCodec:      s.sessionCodec,
		KeyRotator:        s.keyRotator,
		NetworkClient:     s.networkClient,
		AccountLocker:     s.locker,
		AdminAlerter:      s.alerter,
		AccountStore:      s.accountStore,
		KeyStore:          s.keyStore,
		DestroyAuditStore: s.destroyAuditStore,
		OutboxStore:       s.outboxStore,
		ProxyStore:        s.proxyStore,
	}
}

// SubmitUpload accepts one raw payload, creates the account record and runs
// the import stage to completion: the returned record is in verifying on
// success or rejected when the payload is unsupported or stays corrupt past
// the retry budget.
func (s *Service) SubmitUpload(ctx context.Context, input SubmitUploadInput) (result SubmitUploadResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"seller_id": input.SellerID,
	}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "submit_upload", err, fields)
	}()

	if s.accountStore == nil {
		return SubmitUploadResult{}, ErrStoreNotConfigured
	}
	if s.importer == nil {
		return SubmitUploadResult{}, ErrImporterNotConfigured
	}
	if s.sealer == nil {
		return SubmitUploadResult{}, ErrSealerNotConfigured
	}
	sellerID := strings.TrimSpace(input.SellerID)
	if sellerID == "" {
		return SubmitUploadResult{}, newVaultError("seller id is required", goerrors.CategoryBadInput, VaultErrorBadInput)
	}
	if len(input.Upload.Data) == 0 && len(input.Upload.Bundle) == 0 {
		return SubmitUploadResult{}, newVaultError("upload payload is required", goerrors.CategoryBadInput, VaultErrorBadInput)
	}
	input.Upload.SellerID = sellerID

	now := time.Now().UTC()
	record := AccountRecord{
		ID:         uuid.NewString(),
		SellerID:   sellerID,
		Status:     AccountStatusUploaded,
		UploadedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	record, err = s.accountStore.Create(ctx, record)
	if err != nil {
		return SubmitUploadResult{}, err
	}
	fields["account_id"] = record.ID

	record, err = s.applyTransition(ctx, StatusUpdate{
		AccountID: record.ID,
		Expected:  AccountStatusUploaded,
		Next:      AccountStatusImporting,
		Reason:    "import started",
	})
	if err != nil {
		return SubmitUploadResult{}, err
	}

	record, err = s.runImport(ctx, record, input.Upload)
	if err != nil {
		return SubmitUploadResult{Account: record}, err
	}
	fields["account_status"] = string(record.Status)
	fields["source_format"] = record.SourceFormat
	return SubmitUploadResult{Account: record}, nil
}

// runImport holds the account lease while parsing, sealing and advancing the
// record. Corrupt payloads retry under the import budget; unsupported ones do
// not.
func (s *Service) runImport(ctx context.Context, record AccountRecord, upload RawUpload) (AccountRecord, error) {
	lease, err := s.locker.Acquire(ctx, record.ID, s.config.LeaseTTL)
	if err != nil {
		return record, err
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logError(ctx, "lease release failed", map[string]any{
				"account_id": record.ID,
				"error":      releaseErr.Error(),
			})
		}
	}()

	var session CanonicalSession
	policy := NewRetryPolicy(s.config.ImportRetry)
	attempts, importErr := policy.Run(ctx, func(ctx context.Context) error {
		parsed, parseErr := s.importer.Import(upload)
		if parseErr != nil {
			return parseErr
		}
		session = parsed
		return nil
	}, IsCorruptSession)

	if importErr != nil {
		rejected, casErr := s.applyTransition(ctx, StatusUpdate{
			AccountID:      record.ID,
			Expected:       AccountStatusImporting,
			Next:           AccountStatusRejected,
			Reason:         fmt.Sprintf("import failed after %d attempt(s): %v", attempts, importErr),
			ImportAttempts: attempts,
		})
		if casErr != nil {
			return record, casErr
		}
		return rejected, importErr
	}

	plaintext, err := s.sessionCodec.Encode(session)
	if err != nil {
		return record, err
	}
	blob, err := s.sealer.Encrypt(ctx, plaintext)
	if err != nil {
		return record, err
	}

	return s.applyTransition(ctx, StatusUpdate{
		AccountID:       record.ID,
		Expected:        AccountStatusImporting,
		Next:            AccountStatusVerifying,
		Reason:          "import succeeded",
		ImportAttempts:  attempts,
		Blob:            &blob,
		SourceFormat:    session.SourceFormat,
		PhoneNumber:     session.PhoneNumber,
		MessagingUserID: session.AccountID,
		DCID:            session.DCID,
	})
}

// OpenSession decrypts the record's sealed payload. When a retired key served
// the read the blob is re-sealed under the active key before returning.
func (s *Service) OpenSession(ctx context.Context, accountID string) (CanonicalSession, error) {
	if s == nil || s.accountStore == nil {
		return CanonicalSession{}, ErrStoreNotConfigured
	}
	if s.sealer == nil {
		return CanonicalSession{}, ErrSealerNotConfigured
	}
	record, err := s.accountStore.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return CanonicalSession{}, s.mapError(err)
	}
	if len(record.EncryptedPayload) == 0 {
		return CanonicalSession{}, newVaultError("account has no sealed session", goerrors.CategoryNotFound, VaultErrorNotFound)
	}

	plaintext, stale, err := s.sealer.Decrypt(ctx, EncryptedBlob{
		Payload:    record.EncryptedPayload,
		KeyVersion: record.KeyVersion,
	})
	if err != nil {
		return CanonicalSession{}, s.mapError(err)
	}
	if stale {
		if resealed, sealErr := s.sealer.Encrypt(ctx, plaintext); sealErr == nil {
			if replaceErr := s.accountStore.ReplaceBlob(ctx, record.ID, resealed); replaceErr != nil {
				s.logError(ctx, "blob reseal failed", map[string]any{
					"account_id": record.ID,
					"error":      replaceErr.Error(),
				})
			}
		}
	}

	session, err := s.sessionCodec.Decode(plaintext)
	if err != nil {
		return CanonicalSession{}, s.mapError(err)
	}
	return session, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (AccountRecord, error) {
	if s == nil || s.accountStore == nil {
		return AccountRecord{}, ErrStoreNotConfigured
	}
	record, err := s.accountStore.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return AccountRecord{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) ListAccountsByStatus(ctx context.Context, status AccountStatus, limit int) ([]AccountRecord, error) {
	if s == nil || s.accountStore == nil {
		return nil, ErrStoreNotConfigured
	}
	records, err := s.accountStore.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return records, nil
}

func (s *Service) ListAccountsBySeller(ctx context.Context, sellerID string, limit int) ([]AccountRecord, error) {
	if s == nil || s.accountStore == nil {
		return nil, ErrStoreNotConfigured
	}
	records, err := s.accountStore.ListBySeller(ctx, strings.TrimSpace(sellerID), limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return records, nil
}

// applyTransition performs the guarded status update and queues the matching
// lifecycle event. The event rides the outbox so a later dispatch failure
// never loses it.
func (s *Service) applyTransition(ctx context.Context, update StatusUpdate) (AccountRecord, error) {
	record, err := s.accountStore.UpdateStatusCAS(ctx, update)
	if err != nil {
		return record, err
	}
	s.emitEvent(ctx, NewAccountStatusChangedEvent(update.AccountID, update.Expected, update.Next, update.Reason, time.Now().UTC()))
	return record, nil
}

func (s *Service) emitEvent(ctx context.Context, event OutboxEvent) {
	if s == nil || s.outboxStore == nil {
		return
	}
	if err := s.outboxStore.Enqueue(ctx, event); err != nil {
		s.logError(ctx, "event enqueue failed", map[string]any{
			"event":      event.Name,
			"account_id": event.AccountID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
