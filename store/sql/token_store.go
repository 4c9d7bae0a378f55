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
	"github.com/goliatone/go-integrations/oauth"
)

type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, uuidHandlers[tokenRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{db: db, repo: repo}, nil
}

func (s *TokenStore) Get(ctx context.Context, key core.TenantKey) (oauth.Token, error) {
	if s == nil || s.db == nil {
		return oauth.Token{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	key = core.NormalizeTenantKey(key)

	record := &tokenRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", key.TenantID).
		Where("?TableAlias.provider_name = ?", key.AdapterName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return oauth.Token{}, core.ErrNotFound
		}
		return oauth.Token{}, err
	}
	return record.toDomain(), nil
}

func (s *TokenStore) Save(ctx context.Context, token oauth.Token) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	key := token.Key()
	if key.TenantID == "" || key.AdapterName == "" {
		return fmt.Errorf("sqlstore: tenant id and provider name are required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &tokenRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.tenant_id = ?", key.TenantID).
			Where("?TableAlias.provider_name = ?", key.AdapterName).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := newTokenRecord(token, now)
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

func (s *TokenStore) Delete(ctx context.Context, key core.TenantKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	key = core.NormalizeTenantKey(key)
	result, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("tenant_id = ?", key.TenantID).
		Where("provider_name = ?", key.AdapterName).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *TokenStore) List(ctx context.Context, providerName string) ([]oauth.Token, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: token store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("tenant_id ASC")}
	if providerName != "" {
		criteria = append(criteria, repository.SelectBy("provider_name", "=", providerName))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]oauth.Token, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
