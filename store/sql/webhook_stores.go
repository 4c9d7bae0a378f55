package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type WebhookRegistrationStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookRegistrationRecord]
}

func NewWebhookRegistrationStore(db *bun.DB) (*WebhookRegistrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRegistrationRecord](db, uuidHandlers[webhookRegistrationRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook registration repository wiring: %w", err)
		}
	}
	return &WebhookRegistrationStore{db: db, repo: repo}, nil
}

func (s *WebhookRegistrationStore) Save(ctx context.Context, registration webhooks.Registration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook registration store is not configured")
	}
	record := newWebhookRegistrationRecord(registration)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*webhookRegistrationRecord)(nil)).
			Where("id = ?", record.ID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, updateErr := tx.NewUpdate().Model(record).WherePK().Exec(ctx)
			return updateErr
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	})
}

func (s *WebhookRegistrationStore) Get(ctx context.Context, tenantID string, id string) (webhooks.Registration, error) {
	if s == nil || s.db == nil {
		return webhooks.Registration{}, fmt.Errorf("sqlstore: webhook registration store is not configured")
	}
	record := &webhookRegistrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.Registration{}, core.ErrNotFound
		}
		return webhooks.Registration{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookRegistrationStore) Delete(ctx context.Context, tenantID string, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook registration store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*webhookRegistrationRecord)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *WebhookRegistrationStore) ListByTenant(ctx context.Context, tenantID string) ([]webhooks.Registration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook registration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]webhooks.Registration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, uuidHandlers[webhookDeliveryRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{db: db, repo: repo}, nil
}

func (s *WebhookDeliveryStore) Save(ctx context.Context, delivery webhooks.Delivery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	_, err := s.db.NewInsert().
		Model(newWebhookDeliveryRecord(delivery)).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) ListByTenant(ctx context.Context, tenantID string, event string, limit int) ([]webhooks.Delivery, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.OrderBy("created_at DESC"),
	}
	if event != "" {
		criteria = append(criteria, repository.SelectBy("event", "=", event))
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]webhooks.Delivery, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
