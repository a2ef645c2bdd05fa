package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRefundPolicyStore struct {
	mu          sync.Mutex
	policies    map[string]core.RefundPolicy
	getCalls    int
	upsertCalls int
	upsertErr   error
}

func newStubRefundPolicyStore(policies ...core.RefundPolicy) *stubRefundPolicyStore {
	store := &stubRefundPolicyStore{policies: map[string]core.RefundPolicy{}}
	for _, policy := range policies {
		store.policies[policy.ShopID] = policy
	}
	return store
}

func (s *stubRefundPolicyStore) GetRefundPolicy(_ context.Context, shopID string) (core.RefundPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	policy, ok := s.policies[shopID]
	if !ok {
		return core.RefundPolicy{}, fmt.Errorf("%w: shop %q", core.ErrRefundPolicyMissing, shopID)
	}
	return cloneRefundPolicy(policy), nil
}

func (s *stubRefundPolicyStore) UpsertRefundPolicy(_ context.Context, policy core.RefundPolicy) (core.RefundPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return core.RefundPolicy{}, s.upsertErr
	}
	s.policies[policy.ShopID] = cloneRefundPolicy(policy)
	return cloneRefundPolicy(policy), nil
}

func TestCachedRefundPolicyStore_Get_MissFetchThenHit(t *testing.T) {
	hours := 24
	base := newStubRefundPolicyStore(core.RefundPolicy{ShopID: "shop_1", Percentage: 50, TimeLimitHours: &hours, IsActive: true})
	store, err := NewCachedRefundPolicyStore(base, newTestPolicyCacheService(t))
	if err != nil {
		t.Fatalf("new cached policy store: %v", err)
	}

	first, err := store.GetRefundPolicy(context.Background(), "shop_1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}
	*first.TimeLimitHours = 1

	second, err := store.GetRefundPolicy(context.Background(), " shop_1 ")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
	if second.TimeLimitHours == nil || *second.TimeLimitHours != 24 {
		t.Fatalf("expected cached policy to be isolated from caller mutation, got %+v", second)
	}
}

func TestCachedRefundPolicyStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	base := newStubRefundPolicyStore(core.RefundPolicy{ShopID: "shop_1", Percentage: 50, IsActive: true})
	store, err := NewCachedRefundPolicyStore(base, newTestPolicyCacheService(t))
	if err != nil {
		t.Fatalf("new cached policy store: %v", err)
	}

	if _, err := store.GetRefundPolicy(context.Background(), "shop_1"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if _, err := store.UpsertRefundPolicy(context.Background(), core.RefundPolicy{ShopID: "shop_1", Percentage: 80, IsActive: true}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}

	policy, err := store.GetRefundPolicy(context.Background(), "shop_1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected upsert invalidation to force a base read, got %d", base.getCalls)
	}
	if policy.Percentage != 80 {
		t.Fatalf("expected updated policy, got %+v", policy)
	}
}

func TestCachedRefundPolicyStore_UpsertFailureKeepsCache(t *testing.T) {
	base := newStubRefundPolicyStore(core.RefundPolicy{ShopID: "shop_1", Percentage: 50, IsActive: true})
	store, err := NewCachedRefundPolicyStore(base, newTestPolicyCacheService(t))
	if err != nil {
		t.Fatalf("new cached policy store: %v", err)
	}
	if _, err := store.GetRefundPolicy(context.Background(), "shop_1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	base.upsertErr = errors.New("write failed")
	if _, err := store.UpsertRefundPolicy(context.Background(), core.RefundPolicy{ShopID: "shop_1", Percentage: 10}); err == nil {
		t.Fatalf("expected base write error")
	}
	if _, err := store.GetRefundPolicy(context.Background(), "shop_1"); err != nil {
		t.Fatalf("get after failed upsert: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected failed write to leave the cached entry, base get calls=%d", base.getCalls)
	}
}

func TestCachedRefundPolicyStore_Get_PropagatesMissingPolicy(t *testing.T) {
	store, err := NewCachedRefundPolicyStore(newStubRefundPolicyStore(), newTestPolicyCacheService(t))
	if err != nil {
		t.Fatalf("new cached policy store: %v", err)
	}
	if _, err := store.GetRefundPolicy(context.Background(), "shop_404"); !errors.Is(err, core.ErrRefundPolicyMissing) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
	if _, err := store.GetRefundPolicy(context.Background(), "  "); !errors.Is(err, core.ErrRefundPolicyMissing) {
		t.Fatalf("expected blank shop to read as missing policy, got %v", err)
	}
}

func TestRefundPolicyCacheKey_Format(t *testing.T) {
	key, err := RefundPolicyCacheKey(" shop/1 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-payments::refund_policy::v1::shop%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := RefundPolicyCacheKey(""); err == nil {
		t.Fatalf("expected blank shop id to be rejected")
	}
}

func TestNewCachedRefundPolicyStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedRefundPolicyStore(nil, newTestPolicyCacheService(t)); err == nil {
		t.Fatalf("expected missing base store to be rejected")
	}
	if _, err := NewCachedRefundPolicyStore(newStubRefundPolicyStore(), nil); err == nil {
		t.Fatalf("expected missing cache service to be rejected")
	}
}

func newTestPolicyCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
