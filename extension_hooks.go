package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
)

// RefundPolicyPack seeds shop refund policies from a downstream module.
type RefundPolicyPack struct {
	Name     string
	Policies []core.RefundPolicy
}

// CatalogPack seeds the priced services of one shop.
type CatalogPack struct {
	Name     string
	ShopID   string
	Services []core.CatalogService
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	policyPacks  map[string]RefundPolicyPack
	catalogPacks map[string]CatalogPack
	bundles      map[string]CommandQueryBundleFactory
	listeners    map[string]core.TransitionEventPublisher
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		policyPacks:  map[string]RefundPolicyPack{},
		catalogPacks: map[string]CatalogPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
		listeners:    map[string]core.TransitionEventPublisher{},
	}
}

func (h *ExtensionHooks) RegisterRefundPolicyPack(pack RefundPolicyPack) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("payments: refund policy pack name is required")
	}
	if len(pack.Policies) == 0 {
		return fmt.Errorf("payments: refund policy pack %q has no policies", name)
	}
	for _, policy := range pack.Policies {
		if strings.TrimSpace(policy.ShopID) == "" {
			return fmt.Errorf("payments: refund policy pack %q contains a policy without shop id", name)
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("payments: refund policy pack %q: %w", name, err)
		}
	}

	normalized := RefundPolicyPack{
		Name:     name,
		Policies: append([]core.RefundPolicy(nil), pack.Policies...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.policyPacks[name]; exists {
		return fmt.Errorf("payments: refund policy pack %q already registered", name)
	}
	h.policyPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCatalogPack(pack CatalogPack) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	shopID := strings.TrimSpace(pack.ShopID)
	if name == "" {
		return fmt.Errorf("payments: catalog pack name is required")
	}
	if shopID == "" {
		return fmt.Errorf("payments: catalog pack %q shop id is required", name)
	}
	if len(pack.Services) == 0 {
		return fmt.Errorf("payments: catalog pack %q has no services", name)
	}

	services := make([]core.CatalogService, 0, len(pack.Services))
	for _, service := range pack.Services {
		service.ShopID = shopID
		if err := service.Validate(); err != nil {
			return fmt.Errorf("payments: catalog pack %q: %w", name, err)
		}
		services = append(services, service)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.catalogPacks[name]; exists {
		return fmt.Errorf("payments: catalog pack %q already registered", name)
	}
	h.catalogPacks[name] = CatalogPack{Name: name, ShopID: shopID, Services: services}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("payments: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("payments: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("payments: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// RegisterTransitionListener adds a publisher that receives every committed
// transition through TransitionPublisher.
func (h *ExtensionHooks) RegisterTransitionListener(name string, listener core.TransitionEventPublisher) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("payments: transition listener name is required")
	}
	if listener == nil {
		return fmt.Errorf("payments: transition listener %q is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.listeners[name]; exists {
		return fmt.Errorf("payments: transition listener %q already registered", name)
	}
	h.listeners[name] = listener
	return nil
}

func (h *ExtensionHooks) ApplyRefundPolicyPacks(ctx context.Context, writer paymentscommand.RefundPolicyWriter) error {
	if h == nil {
		return nil
	}
	if writer == nil {
		return fmt.Errorf("payments: refund policy writer is required")
	}
	for _, pack := range h.RefundPolicyPacks() {
		for _, policy := range pack.Policies {
			if _, err := writer.UpsertRefundPolicy(ctx, policy); err != nil {
				return fmt.Errorf("payments: apply refund policy pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyCatalogPacks(ctx context.Context, writer paymentscommand.CatalogWriter) error {
	if h == nil {
		return nil
	}
	if writer == nil {
		return fmt.Errorf("payments: catalog writer is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.catalogPacks)
	packs := make([]CatalogPack, 0, len(names))
	for _, name := range names {
		packs = append(packs, h.catalogPacks[name])
	}
	h.mu.RUnlock()

	for _, pack := range packs {
		for _, service := range pack.Services {
			if _, err := writer.CreateService(ctx, service); err != nil {
				return fmt.Errorf("payments: apply catalog pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

// TransitionPublisher fans events out to base followed by the registered
// listeners in name order. A failing listener does not stop the others.
func (h *ExtensionHooks) TransitionPublisher(base core.TransitionEventPublisher) core.TransitionEventPublisher {
	targets := []namedPublisher{}
	if base != nil {
		targets = append(targets, namedPublisher{name: "base", publisher: base})
	}
	if h != nil {
		h.mu.RLock()
		for _, name := range sortedKeys(h.listeners) {
			targets = append(targets, namedPublisher{name: name, publisher: h.listeners[name]})
		}
		h.mu.RUnlock()
	}
	if len(targets) == 0 {
		return nil
	}
	if len(targets) == 1 {
		return targets[0].publisher
	}
	return fanoutPublisher{targets: targets}
}

func (h *ExtensionHooks) RefundPolicyPacks() []RefundPolicyPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := sortedKeys(h.policyPacks)
	out := make([]RefundPolicyPack, 0, len(names))
	for _, name := range names {
		pack := h.policyPacks[name]
		out = append(out, RefundPolicyPack{
			Name:     pack.Name,
			Policies: append([]core.RefundPolicy(nil), pack.Policies...),
		})
	}
	return out
}

func (h *ExtensionHooks) CatalogServices(shopID string) []core.CatalogService {
	if h == nil {
		return nil
	}
	shopID = strings.TrimSpace(shopID)
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []core.CatalogService{}
	for _, name := range sortedKeys(h.catalogPacks) {
		pack := h.catalogPacks[name]
		if pack.ShopID == shopID {
			out = append(out, pack.Services...)
		}
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

type namedPublisher struct {
	name      string
	publisher core.TransitionEventPublisher
}

type fanoutPublisher struct {
	targets []namedPublisher
}

func (p fanoutPublisher) PublishTransition(ctx context.Context, event core.PaymentTransitionedEvent) error {
	var errs []error
	for _, target := range p.targets {
		if err := target.publisher.PublishTransition(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("payments: transition listener %q: %w", target.name, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
