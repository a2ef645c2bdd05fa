package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-payments/core"
)

const refundPolicyCacheKeyPrefix = "go-payments::refund_policy::v1"

// RefundPolicyWriter persists shop refund policies.
type RefundPolicyWriter interface {
	core.RefundPolicyProvider
	UpsertRefundPolicy(ctx context.Context, policy core.RefundPolicy) (core.RefundPolicy, error)
}

// CachedRefundPolicyStore serves policy reads from a cache and drops the
// cached entry whenever a policy is written through it.
type CachedRefundPolicyStore struct {
	base  RefundPolicyWriter
	cache repositorycache.CacheService
}

func NewCachedRefundPolicyStore(
	base RefundPolicyWriter,
	cacheService repositorycache.CacheService,
) (*CachedRefundPolicyStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base refund policy store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: refund policy cache service is required")
	}
	return &CachedRefundPolicyStore{base: base, cache: cacheService}, nil
}

// RefundPolicyCacheKey returns go-payments::refund_policy::v1::<shop_id> with
// the shop id trimmed and URL-path escaped.
func RefundPolicyCacheKey(shopID string) (string, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return "", fmt.Errorf("sqlstore: shop id is required")
	}
	return refundPolicyCacheKeyPrefix + "::" + url.PathEscape(shopID), nil
}

func (s *CachedRefundPolicyStore) GetRefundPolicy(ctx context.Context, shopID string) (core.RefundPolicy, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.RefundPolicy{}, fmt.Errorf("sqlstore: cached refund policy store is not configured")
	}
	cacheKey, err := RefundPolicyCacheKey(shopID)
	if err != nil {
		return core.RefundPolicy{}, fmt.Errorf("%w: %v", core.ErrRefundPolicyMissing, err)
	}
	policy, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.RefundPolicy, error) {
		fetched, fetchErr := s.base.GetRefundPolicy(ctx, strings.TrimSpace(shopID))
		if fetchErr != nil {
			return core.RefundPolicy{}, fetchErr
		}
		return cloneRefundPolicy(fetched), nil
	})
	if err != nil {
		return core.RefundPolicy{}, err
	}
	return cloneRefundPolicy(policy), nil
}

func (s *CachedRefundPolicyStore) UpsertRefundPolicy(ctx context.Context, policy core.RefundPolicy) (core.RefundPolicy, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.RefundPolicy{}, fmt.Errorf("sqlstore: cached refund policy store is not configured")
	}
	cacheKey, err := RefundPolicyCacheKey(policy.ShopID)
	if err != nil {
		return core.RefundPolicy{}, err
	}
	saved, err := s.base.UpsertRefundPolicy(ctx, policy)
	if err != nil {
		return core.RefundPolicy{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.RefundPolicy{}, err
	}
	return saved, nil
}

func cloneRefundPolicy(policy core.RefundPolicy) core.RefundPolicy {
	cloned := policy
	cloned.TimeLimitHours = cloneIntPointer(policy.TimeLimitHours)
	cloned.MaxRefundAmount = cloneInt64Pointer(policy.MaxRefundAmount)
	return cloned
}
