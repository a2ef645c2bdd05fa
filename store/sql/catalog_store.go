package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-payments/core"
	"github.com/uptrace/bun"
)

type CatalogStore struct {
	db   *bun.DB
	repo repository.Repository[*catalogServiceRecord]
}

func NewCatalogStore(db *bun.DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*catalogServiceRecord](db, catalogServiceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid catalog repository wiring: %w", err)
		}
	}
	return &CatalogStore{db: db, repo: repo}, nil
}

func (s *CatalogStore) GetService(ctx context.Context, serviceID string) (core.CatalogService, error) {
	if s == nil || s.repo == nil {
		return core.CatalogService{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	serviceID = strings.TrimSpace(serviceID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", serviceID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.CatalogService{}, classifyDriverError("get catalog service", err)
	}
	if len(records) == 0 {
		return core.CatalogService{}, fmt.Errorf("%w: id %q", core.ErrServiceNotFound, serviceID)
	}
	return records[0].toDomain(), nil
}

// CreateService adds a catalog entry. Entries keep the id they are given.
func (s *CatalogStore) CreateService(ctx context.Context, service core.CatalogService) (core.CatalogService, error) {
	if s == nil || s.repo == nil {
		return core.CatalogService{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	service.ID = strings.TrimSpace(service.ID)
	service.ShopID = strings.TrimSpace(service.ShopID)
	if service.ID == "" || service.ShopID == "" {
		return core.CatalogService{}, fmt.Errorf("sqlstore: service id and shop id are required")
	}
	if err := service.Validate(); err != nil {
		return core.CatalogService{}, err
	}
	created, err := s.repo.Create(ctx, newCatalogServiceRecord(service, time.Now().UTC()))
	if err != nil {
		return core.CatalogService{}, classifyDriverError("create catalog service", err)
	}
	return created.toDomain(), nil
}

// ListByShop returns the catalog of a shop ordered by name.
func (s *CatalogStore) ListByShop(ctx context.Context, shopID string) ([]core.CatalogService, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("shop_id", "=", strings.TrimSpace(shopID)),
		repository.OrderBy("name ASC"),
	)
	if err != nil {
		return nil, classifyDriverError("list catalog services", err)
	}
	out := make([]core.CatalogService, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
