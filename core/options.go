package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

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
	runtimeConfig        Config
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	errorMapper          ErrorMapper
	persistenceClient    any
	repositoryFactory    any
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	paymentStore         PaymentStore
	reservationStore     ReservationStore
	refundPolicyProvider RefundPolicyProvider
	catalogProvider      CatalogProvider
	transactionManager   TransactionManager
	eventPublisher       TransitionEventPublisher
	sweepLocker          SweepLocker
	clock                func() time.Time
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

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts a RepositoryStoreFactory or a StoreProvider.
// Optional accessors for the policy, catalog and transaction manager are
// picked up when the factory exposes them.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
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

func WithPaymentStore(store PaymentStore) Option {
	return func(b *serviceBuilder) {
		b.paymentStore = store
	}
}

func WithReservationStore(store ReservationStore) Option {
	return func(b *serviceBuilder) {
		b.reservationStore = store
	}
}

func WithRefundPolicyProvider(provider RefundPolicyProvider) Option {
	return func(b *serviceBuilder) {
		b.refundPolicyProvider = provider
	}
}

func WithCatalogProvider(provider CatalogProvider) Option {
	return func(b *serviceBuilder) {
		b.catalogProvider = provider
	}
}

func WithTransactionManager(manager TransactionManager) Option {
	return func(b *serviceBuilder) {
		b.transactionManager = manager
	}
}

func WithEventPublisher(publisher TransitionEventPublisher) Option {
	return func(b *serviceBuilder) {
		b.eventPublisher = publisher
	}
}

func WithSweepLocker(locker SweepLocker) Option {
	return func(b *serviceBuilder) {
		b.sweepLocker = locker
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("payments", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		sweepLocker:     NewMemorySweepLocker(),
		clock:           time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return paymentErrorMapper(err)
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw values over defaults. Without a loader the defaults
// are validated and returned as is.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	raw := map[string]any{}
	if p.Loader != nil {
		loaded, err := p.Loader.LoadRaw(ctx)
		if err != nil {
			return Config{}, fmt.Errorf("core: load payments config: %w", err)
		}
		raw = loaded
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver layers defaults < loaded config < runtime config. Zero
// fields of the upper layers never mask a lower layer.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// configToLayerMap flattens cfg into a layer. Zero values are dropped unless
// includeZero is set so they do not mask lower layers.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	set := func(target map[string]any, key string, value any, zero bool) {
		if includeZero || !zero {
			target[key] = value
		}
	}
	nested := func(key string, fill func(map[string]any)) {
		section := map[string]any{}
		fill(section)
		if len(section) > 0 {
			layer[key] = section
		}
	}
	profile := func(p TransactionProfileConfig) map[string]any {
		section := map[string]any{}
		set(section, "isolation", p.Isolation, strings.TrimSpace(p.Isolation) == "")
		set(section, "max_retries", p.MaxRetries, p.MaxRetries == 0)
		set(section, "backoff_base", p.BackoffBase, p.BackoffBase == 0)
		set(section, "max_backoff", p.MaxBackoff, p.MaxBackoff == 0)
		set(section, "timeout", p.Timeout, p.Timeout == 0)
		return section
	}

	set(layer, "service_name", cfg.ServiceName, strings.TrimSpace(cfg.ServiceName) == "")
	set(layer, "currency", cfg.Currency, strings.TrimSpace(cfg.Currency) == "")
	set(layer, "grace_period_hours", cfg.GracePeriodHours, cfg.GracePeriodHours == 0)
	set(layer, "max_payment_amount", cfg.MaxPaymentAmount, cfg.MaxPaymentAmount == 0)
	nested("deposit", func(section map[string]any) {
		set(section, "default_percentage", cfg.Deposit.DefaultPercentage, cfg.Deposit.DefaultPercentage == 0)
		set(section, "min_amount", cfg.Deposit.MinAmount, cfg.Deposit.MinAmount == 0)
		set(section, "max_amount", cfg.Deposit.MaxAmount, cfg.Deposit.MaxAmount == 0)
	})
	nested("overpayment", func(section map[string]any) {
		set(section, "warning_ratio", cfg.Overpayment.WarningRatio, cfg.Overpayment.WarningRatio == 0)
		set(section, "threshold", cfg.Overpayment.Threshold, cfg.Overpayment.Threshold == 0)
	})
	nested("default_refund_policy", func(section map[string]any) {
		policy := cfg.DefaultRefundPolicy
		set(section, "percentage", policy.Percentage, policy.Percentage == 0)
		set(section, "time_limit_hours", policy.TimeLimitHours, policy.TimeLimitHours == 0)
		set(section, "max_refund_amount", policy.MaxRefundAmount, policy.MaxRefundAmount == 0)
		set(section, "is_active", policy.IsActive, !policy.IsActive)
	})
	nested("transactions", func(section map[string]any) {
		if booking := profile(cfg.Transactions.Booking); len(booking) > 0 {
			section["booking"] = booking
		}
		if resolution := profile(cfg.Transactions.ConflictResolution); len(resolution) > 0 {
			section["conflict_resolution"] = resolution
		}
	})
	nested("sweep", func(section map[string]any) {
		set(section, "batch_size", cfg.Sweep.BatchSize, cfg.Sweep.BatchSize == 0)
		set(section, "lock_key", cfg.Sweep.LockKey, strings.TrimSpace(cfg.Sweep.LockKey) == "")
		set(section, "lock_ttl", cfg.Sweep.LockTTL, cfg.Sweep.LockTTL == 0)
	})
	nested("policy_cache", func(section map[string]any) {
		set(section, "ttl", cfg.PolicyCache.TTL, cfg.PolicyCache.TTL == 0)
	})
	return layer
}
