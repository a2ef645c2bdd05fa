package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type fixedStoreProvider struct {
	ledger  *memoryLedger
	manager *memoryTxManager
}

func (p fixedStoreProvider) PaymentStore() PaymentStore         { return p.ledger }
func (p fixedStoreProvider) ReservationStore() ReservationStore { return p.ledger }
func (p fixedStoreProvider) RefundPolicyProvider() RefundPolicyProvider {
	return p.ledger
}
func (p fixedStoreProvider) TransactionManager() TransactionManager { return p.manager }

type fixedStoreFactory struct {
	provider StoreProvider
	client   any
}

func (f *fixedStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	return f.provider, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil || deps.LoggerProvider == nil {
		t.Fatalf("expected default logger and provider")
	}
	if deps.ErrorMapper == nil || deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default error mapper, config provider and options resolver")
	}
	if deps.SweepLocker == nil {
		t.Fatalf("expected default in-memory sweep locker")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "payments" || cfg.Deposit.DefaultPercentage != 25 || cfg.GracePeriodHours != 72 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}

	_, err = svc.TrackPayments(context.Background(), "res_1")
	if MapError(err).TextCode != PaymentErrorInternal {
		t.Fatalf("expected unconfigured stores to report an internal error, got %v", err)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: DefaultConfig()}
	optionsResolver.cfg.ServiceName = "resolved"
	locker := NewMemorySweepLocker()

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithSweepLocker(locker),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("payments.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != persistenceClient {
		t.Fatalf("expected custom persistence client override")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom config provider and options resolver")
	}
	if deps.SweepLocker != locker {
		t.Fatalf("expected custom sweep locker")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}

	_, err = svc.TrackPayments(context.Background(), "res_1")
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected custom error mapper to be used, got %v", err)
	}
}

func TestNewService_ResolvesStoresFromRepositoryFactory(t *testing.T) {
	ledger := newMemoryLedger()
	manager := newMemoryTxManager(ledger)
	factory := &fixedStoreFactory{provider: fixedStoreProvider{ledger: ledger, manager: manager}}
	client := &struct{}{}

	svc, err := NewService(Config{},
		WithLogger(stubLogger{}),
		WithPersistenceClient(client),
		WithRepositoryFactory(factory),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if factory.client != client {
		t.Fatalf("expected persistence client to be passed to the factory")
	}
	deps := svc.Dependencies()
	if deps.PaymentStore != ledger || deps.ReservationStore != ledger || deps.TransactionManager != manager {
		t.Fatalf("expected stores and transaction manager from the factory")
	}
	if deps.RefundPolicyProvider != ledger {
		t.Fatalf("expected refund policy provider from the factory")
	}
	if deps.CatalogProvider != nil {
		t.Fatalf("expected no catalog provider when the factory does not expose one")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name":       "from-config",
		"grace_period_hours": 48,
		"deposit": map[string]any{
			"default_percentage": 30,
		},
	}})

	runtime := Config{ServiceName: "from-runtime"}
	runtime.Sweep.BatchSize = 25
	svc, err := NewService(runtime, WithConfigProvider(provider), WithLogger(stubLogger{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.GracePeriodHours != 48 || cfg.Deposit.DefaultPercentage != 30 {
		t.Fatalf("expected config layer values, got grace=%d deposit=%v", cfg.GracePeriodHours, cfg.Deposit.DefaultPercentage)
	}
	if cfg.Deposit.MinAmount != 10000 || cfg.Transactions.Booking.MaxRetries != 5 {
		t.Fatalf("expected defaults to survive layering, got %+v", cfg)
	}
	if cfg.Sweep.BatchSize != 25 || cfg.Sweep.LockTTL != time.Minute {
		t.Fatalf("expected runtime sweep batch and default lock ttl, got %+v", cfg.Sweep)
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"deposit": map[string]any{"default_percentage": 150},
	}})
	if _, err := NewService(Config{}, WithConfigProvider(provider), WithLogger(stubLogger{})); err == nil {
		t.Fatalf("expected invalid deposit percentage to be rejected")
	}
}
