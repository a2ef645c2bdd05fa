// Package gocommand binds payments commands and queries to a go-command
// registry and the global dispatcher.
package gocommand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const (
	CommandTypePrefix = "payments.command."
	QueryTypePrefix   = "payments.query."

	// QueueResolverKey names the resolver that mirrors commands into go-job.
	QueueResolverKey = "payments.queue"
)

// ValidateMessageContract runs the optional Validate() and requires a
// payments message type.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	return checkMessageType(strings.TrimSpace(m.Type()), "payments.")
}

func checkMessageType(msgType string, prefix string) error {
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, prefix) {
		return fmt.Errorf("gocommand: message type %q is outside %q", msgType, prefix)
	}
	return nil
}

func messageTypeOf[T any]() string {
	var zero T
	if m, ok := any(zero).(command.Message); ok {
		return strings.TrimSpace(m.Type())
	}
	return ""
}

// RegistryAdapter owns a go-command registry and remembers which payments
// message types were bound through it, so a type is never registered twice.
type RegistryAdapter struct {
	registry *command.Registry

	mu    sync.Mutex
	bound map[string]string
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, bound: map[string]string{}}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery stores queries next to commands; go-command resolves both
// from the same registry.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue makes every registered command enqueueable through the
// go-job queue registry once Initialize runs.
func (a *RegistryAdapter) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// MessageTypes lists the bound payments message types in order.
func (a *RegistryAdapter) MessageTypes() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.bound))
	for msgType := range a.bound {
		out = append(out, msgType)
	}
	sort.Strings(out)
	return out
}

func (a *RegistryAdapter) bind(msgType string, prefix string) error {
	if err := checkMessageType(msgType, prefix); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bound == nil {
		a.bound = map[string]string{}
	}
	if _, exists := a.bound[msgType]; exists {
		return fmt.Errorf("gocommand: message type %q is already registered", msgType)
	}
	a.bound[msgType] = prefix
	return nil
}

func (a *RegistryAdapter) unbind(msgType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bound, msgType)
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe binds a payments command to the registry and the
// dispatcher. The message type must live under CommandTypePrefix.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	msgType := messageTypeOf[T]()
	if err := adapter.bind(msgType, CommandTypePrefix); err != nil {
		return nil, err
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		adapter.unbind(msgType)
		return nil, err
	}
	return SubscribeCommand(cmd, runnerOpts...), nil
}

// RegisterAndSubscribeQuery is RegisterAndSubscribe for QueryTypePrefix
// messages.
func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	msgType := messageTypeOf[T]()
	if err := adapter.bind(msgType, QueryTypePrefix); err != nil {
		return nil, err
	}
	if err := adapter.RegisterQuery(qry); err != nil {
		adapter.unbind(msgType)
		return nil, err
	}
	return SubscribeQuery(qry, runnerOpts...), nil
}
