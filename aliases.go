package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type AdapterConfig = core.AdapterConfig
type AdapterRequest = core.AdapterRequest
type AdapterResponse = core.AdapterResponse
type AuthCredentials = core.AuthCredentials
type AuthType = core.AuthType
type TenantKey = core.TenantKey

const (
	AuthTypeNone   = core.AuthTypeNone
	AuthTypeAPIKey = core.AuthTypeAPIKey
	AuthTypeBasic  = core.AuthTypeBasic
	AuthTypeOAuth2 = core.AuthTypeOAuth2
	AuthTypeCustom = core.AuthTypeCustom
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
