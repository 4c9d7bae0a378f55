// Package sqlstore provides bun-backed persistence for credentials, tokens,
// webhook registrations and deliveries, dead letters, and idempotency
// records.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, uuidHandlers[credentialRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) Get(ctx context.Context, key core.TenantKey) (core.AuthCredentials, error) {
	if s == nil || s.db == nil {
		return core.AuthCredentials{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = core.NormalizeTenantKey(key)

	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", key.TenantID).
		Where("?TableAlias.adapter_name = ?", key.AdapterName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AuthCredentials{}, core.ErrNotFound
		}
		return core.AuthCredentials{}, err
	}
	return record.toDomain(), nil
}

// Set replaces the (tenant, adapter) record wholesale.
func (s *CredentialStore) Set(ctx context.Context, creds core.AuthCredentials) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key := creds.Key()
	if key.TenantID == "" || key.AdapterName == "" {
		return fmt.Errorf("sqlstore: tenant id and adapter name are required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &credentialRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.tenant_id = ?", key.TenantID).
			Where("?TableAlias.adapter_name = ?", key.AdapterName).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := newCredentialRecord(creds, now)
		if errors.Is(err, sql.ErrNoRows) {
			record.ID = uuid.NewString()
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}

		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		_, updateErr := tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx)
		return updateErr
	})
}

func (s *CredentialStore) Delete(ctx context.Context, key core.TenantKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = core.NormalizeTenantKey(key)
	result, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("tenant_id = ?", key.TenantID).
		Where("adapter_name = ?", key.AdapterName).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *CredentialStore) List(ctx context.Context, adapterName string) ([]core.AuthCredentials, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("tenant_id ASC")}
	if adapterName != "" {
		criteria = append(criteria, repository.SelectBy("adapter_name", "=", adapterName))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuthCredentials, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
