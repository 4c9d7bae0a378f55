package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeSetCredentials    = "integrations.command.credentials.set"
	TypeDeleteCredentials = "integrations.command.credentials.delete"
	TypeRequest           = "integrations.command.request"
	TypeEmitEvent         = "integrations.command.webhooks.emit"
	TypeRegisterWebhook   = "integrations.command.webhooks.register"
	TypeUnregisterWebhook = "integrations.command.webhooks.unregister"
	TypeReplayDeadLetter  = "integrations.command.dlq.replay"
	TypeDiscardDeadLetter = "integrations.command.dlq.discard"
	TypeRevokeToken       = "integrations.command.oauth.revoke"
)

type SetCredentialsMessage struct {
	Credentials core.AuthCredentials
}

func (SetCredentialsMessage) Type() string { return TypeSetCredentials }

func (m SetCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.Credentials.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Credentials.AdapterName) == "" {
		return fmt.Errorf("command: adapter name is required")
	}
	if !m.Credentials.AuthType.Valid() {
		return fmt.Errorf("command: invalid auth type %q", m.Credentials.AuthType)
	}
	return nil
}

type DeleteCredentialsMessage struct {
	Key core.TenantKey
}

func (DeleteCredentialsMessage) Type() string { return TypeDeleteCredentials }

func (m DeleteCredentialsMessage) Validate() error {
	return validateTenantKey(m.Key)
}

type RequestMessage struct {
	AdapterName string
	TenantID    string
	Operation   string
	Request     core.AdapterRequest
}

func (RequestMessage) Type() string { return TypeRequest }

func (m RequestMessage) Validate() error {
	if strings.TrimSpace(m.AdapterName) == "" {
		return fmt.Errorf("command: adapter name is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	return nil
}

type EmitEventMessage struct {
	TenantID string
	Event    string
	Payload  map[string]any
}

func (EmitEventMessage) Type() string { return TypeEmitEvent }

func (m EmitEventMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.Event) == "" {
		return fmt.Errorf("command: event name is required")
	}
	return nil
}

type RegisterWebhookMessage struct {
	TenantID    string
	URL         string
	Secret      string
	Description string
	Events      []string
}

func (RegisterWebhookMessage) Type() string { return TypeRegisterWebhook }

// Validate leaves Secret optional: unsigned endpoints are allowed.
func (m RegisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.URL) == "" {
		return fmt.Errorf("command: webhook url is required")
	}
	return nil
}

type UnregisterWebhookMessage struct {
	TenantID       string
	RegistrationID string
}

func (UnregisterWebhookMessage) Type() string { return TypeUnregisterWebhook }

func (m UnregisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(m.RegistrationID) == "" {
		return fmt.Errorf("command: registration id is required")
	}
	return nil
}

type ReplayDeadLetterMessage struct {
	LetterID string
}

func (ReplayDeadLetterMessage) Type() string { return TypeReplayDeadLetter }

func (m ReplayDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.LetterID) == "" {
		return fmt.Errorf("command: letter id is required")
	}
	return nil
}

type DiscardDeadLetterMessage struct {
	LetterID string
	Reason   string
}

func (DiscardDeadLetterMessage) Type() string { return TypeDiscardDeadLetter }

func (m DiscardDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.LetterID) == "" {
		return fmt.Errorf("command: letter id is required")
	}
	return nil
}

type RevokeTokenMessage struct {
	ProviderName string
	TenantID     string
}

func (RevokeTokenMessage) Type() string { return TypeRevokeToken }

func (m RevokeTokenMessage) Validate() error {
	if strings.TrimSpace(m.ProviderName) == "" {
		return fmt.Errorf("command: provider name is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	return nil
}

func validateTenantKey(key core.TenantKey) error {
	if strings.TrimSpace(key.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(key.AdapterName) == "" {
		return fmt.Errorf("command: adapter name is required")
	}
	return nil
}
