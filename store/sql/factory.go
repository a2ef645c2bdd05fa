package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-payments/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db          *bun.DB
	policyCache repositorycache.CacheService

	paymentStore       *PaymentStore
	reservationStore   *ReservationStore
	refundPolicyStore  *RefundPolicyStore
	cachedPolicyStore  *CachedRefundPolicyStore
	catalogStore       *CatalogStore
	transactionManager *BunTransactionManager
}

type FactoryOption func(*RepositoryFactory)

// WithPolicyCache serves refund policy reads through cacheService.
func WithPolicyCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.policyCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.paymentStore != nil && f.reservationStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) PaymentStore() core.PaymentStore {
	if f == nil {
		return nil
	}
	return f.paymentStore
}

func (f *RepositoryFactory) ReservationStore() core.ReservationStore {
	if f == nil {
		return nil
	}
	return f.reservationStore
}

// RefundPolicyProvider returns the cached policy store when a policy cache
// is configured.
func (f *RepositoryFactory) RefundPolicyProvider() core.RefundPolicyProvider {
	if f == nil {
		return nil
	}
	if f.cachedPolicyStore != nil {
		return f.cachedPolicyStore
	}
	return f.refundPolicyStore
}

// RefundPolicyWriter returns the writer that keeps the policy cache coherent.
func (f *RepositoryFactory) RefundPolicyWriter() RefundPolicyWriter {
	if f == nil {
		return nil
	}
	if f.cachedPolicyStore != nil {
		return f.cachedPolicyStore
	}
	return f.refundPolicyStore
}

func (f *RepositoryFactory) CatalogProvider() core.CatalogProvider {
	if f == nil {
		return nil
	}
	return f.catalogStore
}

func (f *RepositoryFactory) CatalogStore() *CatalogStore {
	if f == nil {
		return nil
	}
	return f.catalogStore
}

func (f *RepositoryFactory) TransactionManager() core.TransactionManager {
	if f == nil {
		return nil
	}
	return f.transactionManager
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	reservationStore, err := NewReservationStore(f.db)
	if err != nil {
		return err
	}
	f.reservationStore = reservationStore
	paymentStore, err := NewPaymentStore(f.db, reservationStore)
	if err != nil {
		return err
	}
	f.paymentStore = paymentStore
	refundPolicyStore, err := NewRefundPolicyStore(f.db)
	if err != nil {
		return err
	}
	f.refundPolicyStore = refundPolicyStore
	if f.policyCache != nil {
		cached, cacheErr := NewCachedRefundPolicyStore(refundPolicyStore, f.policyCache)
		if cacheErr != nil {
			return cacheErr
		}
		f.cachedPolicyStore = cached
	}
	catalogStore, err := NewCatalogStore(f.db)
	if err != nil {
		return err
	}
	f.catalogStore = catalogStore
	transactionManager, err := NewBunTransactionManager(f.db)
	if err != nil {
		return err
	}
	f.transactionManager = transactionManager
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
