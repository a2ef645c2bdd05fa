package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-payments/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RefundPolicyStore struct {
	db   *bun.DB
	repo repository.Repository[*refundPolicyRecord]
}

func NewRefundPolicyStore(db *bun.DB) (*RefundPolicyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*refundPolicyRecord](db, refundPolicyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid refund policy repository wiring: %w", err)
		}
	}
	return &RefundPolicyStore{db: db, repo: repo}, nil
}

func (s *RefundPolicyStore) GetRefundPolicy(ctx context.Context, shopID string) (core.RefundPolicy, error) {
	if s == nil || s.repo == nil {
		return core.RefundPolicy{}, fmt.Errorf("sqlstore: refund policy store is not configured")
	}
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return core.RefundPolicy{}, fmt.Errorf("%w: shop id is required", core.ErrRefundPolicyMissing)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("shop_id", "=", shopID),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.RefundPolicy{}, classifyDriverError("get refund policy", err)
	}
	if len(records) == 0 {
		return core.RefundPolicy{}, fmt.Errorf("%w: shop %q", core.ErrRefundPolicyMissing, shopID)
	}
	return records[0].toDomain(), nil
}

// UpsertRefundPolicy stores the policy of a shop, replacing the current one.
func (s *RefundPolicyStore) UpsertRefundPolicy(ctx context.Context, policy core.RefundPolicy) (core.RefundPolicy, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.RefundPolicy{}, fmt.Errorf("sqlstore: refund policy store is not configured")
	}
	policy.ShopID = strings.TrimSpace(policy.ShopID)
	if policy.ShopID == "" {
		return core.RefundPolicy{}, fmt.Errorf("sqlstore: shop id is required")
	}
	if err := policy.Validate(); err != nil {
		return core.RefundPolicy{}, err
	}

	var out core.RefundPolicy
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		existing := &refundPolicyRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.shop_id = ?", policy.ShopID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			record := newRefundPolicyRecord(policy, now)
			record.ID = uuid.NewString()
			created, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				if isUniqueViolation(createErr) {
					return fmt.Errorf("sqlstore: concurrent refund policy write for shop %q: %w", policy.ShopID, createErr)
				}
				return createErr
			}
			out = created.toDomain()
			return nil
		}

		existing.Percentage = policy.Percentage
		existing.TimeLimitHours = cloneIntPointer(policy.TimeLimitHours)
		existing.MaxRefundAmount = cloneInt64Pointer(policy.MaxRefundAmount)
		existing.IsActive = policy.IsActive
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(existing).Where("id = ?", existing.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.RefundPolicy{}, classifyDriverError("upsert refund policy", err)
	}
	return out, nil
}
