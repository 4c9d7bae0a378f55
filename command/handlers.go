// Package command exposes the mutating service operations as go-command
// handlers so they can be dispatched, queued, and audited uniformly.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
	"github.com/goliatone/go-integrations/webhooks"
)

// MutatingService is the contract the root service satisfies.
type MutatingService interface {
	SetCredentials(ctx context.Context, creds core.AuthCredentials) error
	DeleteCredentials(ctx context.Context, key core.TenantKey) error
	Request(ctx context.Context, adapterName string, tenantID string, req core.AdapterRequest) (core.AdapterResponse, error)
	RequestIdempotent(ctx context.Context, adapterName string, tenantID string, operation string, req core.AdapterRequest) (core.AdapterResponse, error)
	EmitEvent(ctx context.Context, tenantID string, event string, payload any) ([]webhooks.Delivery, error)
	RegisterWebhook(ctx context.Context, tenantID string, endpoint string, secret string, events []string, opts ...webhooks.RegisterOption) (webhooks.Registration, error)
	UnregisterWebhook(ctx context.Context, tenantID string, id string) error
	ReplayDeadLetter(ctx context.Context, id string) (core.AdapterResponse, error)
	DiscardDeadLetter(ctx context.Context, id string, reason string) (dlq.DeadLetter, error)
	RevokeToken(ctx context.Context, providerName string, tenantID string) error
}

// serviceCommand is the single handler shape behind every command type:
// a dependency name for error reporting plus the operation closure.
type serviceCommand[M gocmd.Message] struct {
	service    MutatingService
	dependency string
	exec       func(ctx context.Context, svc MutatingService, msg M) error
}

func (c *serviceCommand[M]) Execute(ctx context.Context, msg M) error {
	if c == nil || c.service == nil || c.exec == nil {
		dependency := "service"
		if c != nil && c.dependency != "" {
			dependency = c.dependency
		}
		return commandDependencyError("command: " + dependency + " is required")
	}
	return c.exec(ctx, c.service, msg)
}

type (
	SetCredentialsCommand    = serviceCommand[SetCredentialsMessage]
	DeleteCredentialsCommand = serviceCommand[DeleteCredentialsMessage]
	RequestCommand           = serviceCommand[RequestMessage]
	EmitEventCommand         = serviceCommand[EmitEventMessage]
	RegisterWebhookCommand   = serviceCommand[RegisterWebhookMessage]
	UnregisterWebhookCommand = serviceCommand[UnregisterWebhookMessage]
	ReplayDeadLetterCommand  = serviceCommand[ReplayDeadLetterMessage]
	DiscardDeadLetterCommand = serviceCommand[DiscardDeadLetterMessage]
	RevokeTokenCommand       = serviceCommand[RevokeTokenMessage]
)

func NewSetCredentialsCommand(service MutatingService) *SetCredentialsCommand {
	return &SetCredentialsCommand{
		service:    service,
		dependency: "credentials service",
		exec: func(ctx context.Context, svc MutatingService, msg SetCredentialsMessage) error {
			return svc.SetCredentials(ctx, msg.Credentials)
		},
	}
}

func NewDeleteCredentialsCommand(service MutatingService) *DeleteCredentialsCommand {
	return &DeleteCredentialsCommand{
		service:    service,
		dependency: "credentials service",
		exec: func(ctx context.Context, svc MutatingService, msg DeleteCredentialsMessage) error {
			return svc.DeleteCredentials(ctx, msg.Key)
		},
	}
}

func NewRequestCommand(service MutatingService) *RequestCommand {
	return &RequestCommand{
		service:    service,
		dependency: "request service",
		exec: func(ctx context.Context, svc MutatingService, msg RequestMessage) error {
			if msg.Operation != "" {
				response, err := svc.RequestIdempotent(ctx, msg.AdapterName, msg.TenantID, msg.Operation, msg.Request)
				return collecting(ctx, response, err)
			}
			response, err := svc.Request(ctx, msg.AdapterName, msg.TenantID, msg.Request)
			return collecting(ctx, response, err)
		},
	}
}

func NewEmitEventCommand(service MutatingService) *EmitEventCommand {
	return &EmitEventCommand{
		service:    service,
		dependency: "webhook service",
		exec: func(ctx context.Context, svc MutatingService, msg EmitEventMessage) error {
			deliveries, err := svc.EmitEvent(ctx, msg.TenantID, msg.Event, msg.Payload)
			return collecting(ctx, deliveries, err)
		},
	}
}

func NewRegisterWebhookCommand(service MutatingService) *RegisterWebhookCommand {
	return &RegisterWebhookCommand{
		service:    service,
		dependency: "webhook service",
		exec: func(ctx context.Context, svc MutatingService, msg RegisterWebhookMessage) error {
			registration, err := svc.RegisterWebhook(ctx, msg.TenantID, msg.URL, msg.Secret, msg.Events,
				webhooks.WithDescription(msg.Description))
			return collecting(ctx, registration, err)
		},
	}
}

func NewUnregisterWebhookCommand(service MutatingService) *UnregisterWebhookCommand {
	return &UnregisterWebhookCommand{
		service:    service,
		dependency: "webhook service",
		exec: func(ctx context.Context, svc MutatingService, msg UnregisterWebhookMessage) error {
			return svc.UnregisterWebhook(ctx, msg.TenantID, msg.RegistrationID)
		},
	}
}

func NewReplayDeadLetterCommand(service MutatingService) *ReplayDeadLetterCommand {
	return &ReplayDeadLetterCommand{
		service:    service,
		dependency: "dead letter service",
		exec: func(ctx context.Context, svc MutatingService, msg ReplayDeadLetterMessage) error {
			response, err := svc.ReplayDeadLetter(ctx, msg.LetterID)
			return collecting(ctx, response, err)
		},
	}
}

func NewDiscardDeadLetterCommand(service MutatingService) *DiscardDeadLetterCommand {
	return &DiscardDeadLetterCommand{
		service:    service,
		dependency: "dead letter service",
		exec: func(ctx context.Context, svc MutatingService, msg DiscardDeadLetterMessage) error {
			letter, err := svc.DiscardDeadLetter(ctx, msg.LetterID, msg.Reason)
			return collecting(ctx, letter, err)
		},
	}
}

func NewRevokeTokenCommand(service MutatingService) *RevokeTokenCommand {
	return &RevokeTokenCommand{
		service:    service,
		dependency: "oauth service",
		exec: func(ctx context.Context, svc MutatingService, msg RevokeTokenMessage) error {
			return svc.RevokeToken(ctx, msg.ProviderName, msg.TenantID)
		},
	}
}

// collecting stores a successful result on the dispatch context's
// collector so callers can read command output back.
func collecting[T any](ctx context.Context, value T, err error) error {
	if err != nil {
		return err
	}
	if collector := gocmd.ResultFromContext[T](ctx); collector != nil {
		collector.Store(value)
	}
	return nil
}
