// Package gocommand bridges the integration command handlers onto a
// go-command registry and dispatcher. The Bus owns registration while
// dispatch stays on the package-level dispatcher, so message producers
// never need a handle on the service.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	intcmd "github.com/goliatone/go-integrations/command"
)

// ValidateMessageContract checks that a message carries a non-empty
// Type() and passes its own Validate() when it declares one.
func ValidateMessageContract(msg any) error {
	typed, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return gocmd.ValidateMessage(msg)
}

// Bus fronts a go-command registry for command registration and
// resolver management.
type Bus struct {
	registry *gocmd.Registry
}

func NewBus(registry *gocmd.Registry) *Bus {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) ready() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus has no registry")
	}
	return nil
}

func (b *Bus) Registry() *gocmd.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bus) Register(cmd any) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.registry.RegisterCommand(cmd)
}

func (b *Bus) AddResolver(key string, resolver gocmd.Resolver) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (b *Bus) HasResolver(key string) bool {
	if b.ready() != nil {
		return false
	}
	return b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.registry.Initialize()
}

func Subscribe[T any](cmd gocmd.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeFunc[T any](handler gocmd.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Attach subscribes the command on the dispatcher and registers it with
// the bus, undoing the subscription when registration fails.
func Attach[T any](bus *Bus, cmd gocmd.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if err := bus.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	sub := Subscribe(cmd, runnerOpts...)
	if err := bus.Register(cmd); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

// Mount attaches every mutating service command to the bus so the full
// integration surface is dispatchable. On any failure the already
// attached subscriptions are unwound before the error returns.
func Mount(bus *Bus, service intcmd.MutatingService, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if err := bus.ready(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: service is required")
	}

	var subs []commanddispatcher.Subscription
	unwind := func() {
		for _, sub := range subs {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	}

	attach := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			unwind()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	steps := []func() error{
		func() error { return attach(Attach(bus, intcmd.NewSetCredentialsCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewDeleteCredentialsCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewRequestCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewEmitEventCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewRegisterWebhookCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewUnregisterWebhookCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewReplayDeadLetterCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewDiscardDeadLetterCommand(service), runnerOpts...)) },
		func() error { return attach(Attach(bus, intcmd.NewRevokeTokenCommand(service), runnerOpts...)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
