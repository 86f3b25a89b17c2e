package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver

	importer      SessionImporter
	sealer        SessionSealer
	sessionCodec  SessionCodec
	keyRotator    KeyRotator
	networkClient NetworkClient
	locker        AccountLocker
	alerter       AdminAlerter

	accountStore      AccountStore
	keyStore          KeyStore
	destroyAuditStore DestroyAuditStore
	outboxStore       OutboxStore
	proxyStore        ProxyStore

	persistenceClient any
	repositoryFactory any
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithSessionImporter(importer SessionImporter) Option {
	return func(b *serviceBuilder) {
		b.importer = importer
	}
}

func WithSessionSealer(sealer SessionSealer) Option {
	return func(b *serviceBuilder) {
		b.sealer = sealer
	}
}

func WithSessionCodec(codec SessionCodec) Option {
	return func(b *serviceBuilder) {
		b.sessionCodec = codec
	}
}

func WithKeyRotator(rotator KeyRotator) Option {
	return func(b *serviceBuilder) {
		b.keyRotator = rotator
	}
}

func WithNetworkClient(client NetworkClient) Option {
	return func(b *serviceBuilder) {
		b.networkClient = client
	}
}

func WithAccountLocker(locker AccountLocker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithAdminAlerter(alerter AdminAlerter) Option {
	return func(b *serviceBuilder) {
		b.alerter = alerter
	}
}

func WithAccountStore(store AccountStore) Option {
	return func(b *serviceBuilder) {
		b.accountStore = store
	}
}

func WithKeyStore(store KeyStore) Option {
	return func(b *serviceBuilder) {
		b.keyStore = store
	}
}

func WithDestroyAuditStore(store DestroyAuditStore) Option {
	return func(b *serviceBuilder) {
		b.destroyAuditStore = store
	}
}

func WithOutboxStore(store OutboxStore) Option {
	return func(b *serviceBuilder) {
		b.outboxStore = store
	}
}

func WithProxyStore(store ProxyStore) Option {
	return func(b *serviceBuilder) {
		b.proxyStore = store
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("sessionvault", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		sessionCodec:    JSONSessionCodec{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return vaultErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	retryLayer := func(cfg RetryConfig) map[string]any {
		return map[string]any{
			"max_attempts":    cfg.MaxAttempts,
			"initial_backoff": cfg.InitialBackoff,
			"max_backoff":     cfg.MaxBackoff,
		}
	}
	if includeZero || cfg.ImportRetry.MaxAttempts > 0 {
		layer["import_retry"] = retryLayer(cfg.ImportRetry)
	}
	if includeZero || cfg.VerifyRetry.MaxAttempts > 0 {
		layer["verify_retry"] = retryLayer(cfg.VerifyRetry)
	}
	if includeZero || cfg.DestroyRetry.MaxAttempts > 0 {
		layer["destroy_retry"] = retryLayer(cfg.DestroyRetry)
	}

	if includeZero || len(cfg.Verification.FatalChecks) > 0 ||
		cfg.Verification.MaxActiveSessions > 0 || cfg.Verification.MaxFloodWait > 0 ||
		cfg.Verification.RequireTwoFactor {
		layer["verification"] = map[string]any{
			"fatal_checks":        append([]string(nil), cfg.Verification.FatalChecks...),
			"max_active_sessions": cfg.Verification.MaxActiveSessions,
			"max_flood_wait":      cfg.Verification.MaxFloodWait,
			"require_two_factor":  cfg.Verification.RequireTwoFactor,
		}
	}

	if includeZero || cfg.KeyRotationInterval > 0 {
		layer["key_rotation_interval"] = cfg.KeyRotationInterval
	}
	if includeZero || cfg.LeaseTTL > 0 {
		layer["lease_ttl"] = cfg.LeaseTTL
	}
	if includeZero || cfg.ReservationTTL > 0 {
		layer["reservation_ttl"] = cfg.ReservationTTL
	}
	if includeZero || cfg.ListingRetention > 0 {
		layer["listing_retention"] = cfg.ListingRetention
	}
	if includeZero || cfg.DestroyTimeout > 0 {
		layer["destroy_timeout"] = cfg.DestroyTimeout
	}
	if includeZero || cfg.DestroyAlertThreshold > 0 {
		layer["destroy_alert_threshold"] = cfg.DestroyAlertThreshold
	}
	return layer
}
