package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SetCredentialsMessage]    = (*SetCredentialsCommand)(nil)
	_ gocmd.Commander[DeleteCredentialsMessage] = (*DeleteCredentialsCommand)(nil)
	_ gocmd.Commander[RequestMessage]           = (*RequestCommand)(nil)
	_ gocmd.Commander[EmitEventMessage]         = (*EmitEventCommand)(nil)
	_ gocmd.Commander[RegisterWebhookMessage]   = (*RegisterWebhookCommand)(nil)
	_ gocmd.Commander[UnregisterWebhookMessage] = (*UnregisterWebhookCommand)(nil)
	_ gocmd.Commander[ReplayDeadLetterMessage]  = (*ReplayDeadLetterCommand)(nil)
	_ gocmd.Commander[DiscardDeadLetterMessage] = (*DiscardDeadLetterCommand)(nil)
	_ gocmd.Commander[RevokeTokenMessage]       = (*RevokeTokenCommand)(nil)
)
