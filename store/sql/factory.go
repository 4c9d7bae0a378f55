package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds and caches all SQL-backed stores over one bun.DB.
type RepositoryFactory struct {
	db *bun.DB

	credentialStore          *CredentialStore
	tokenStore               *TokenStore
	webhookRegistrationStore *WebhookRegistrationStore
	webhookDeliveryStore     *WebhookDeliveryStore
	deadLetterStore          *DeadLetterStore
	idempotencyStore         *IdempotencyStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	return newRepositoryFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return newRepositoryFactory(db)
}

func newRepositoryFactory(candidate any) (*RepositoryFactory, error) {
	db, err := resolveBunDB(candidate)
	if err != nil {
		return nil, err
	}
	factory := &RepositoryFactory{db: db}
	if err := factory.initStores(); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) CredentialStore() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) TokenStore() *TokenStore {
	if f == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) WebhookRegistrationStore() *WebhookRegistrationStore {
	if f == nil {
		return nil
	}
	return f.webhookRegistrationStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.webhookDeliveryStore
}

func (f *RepositoryFactory) DeadLetterStore() *DeadLetterStore {
	if f == nil {
		return nil
	}
	return f.deadLetterStore
}

func (f *RepositoryFactory) IdempotencyStore() *IdempotencyStore {
	if f == nil {
		return nil
	}
	return f.idempotencyStore
}

func (f *RepositoryFactory) initStores() error {
	var err error
	if f.credentialStore, err = NewCredentialStore(f.db); err != nil {
		return err
	}
	if f.tokenStore, err = NewTokenStore(f.db); err != nil {
		return err
	}
	if f.webhookRegistrationStore, err = NewWebhookRegistrationStore(f.db); err != nil {
		return err
	}
	if f.webhookDeliveryStore, err = NewWebhookDeliveryStore(f.db); err != nil {
		return err
	}
	if f.deadLetterStore, err = NewDeadLetterStore(f.db); err != nil {
		return err
	}
	if f.idempotencyStore, err = NewIdempotencyStore(f.db); err != nil {
		return err
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned a nil db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client %T", candidate)
	}
}
