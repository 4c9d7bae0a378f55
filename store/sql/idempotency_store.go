package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/idempotency"
)

// IdempotencyStore is the durable reservation backend. Reserve wins through
// the primary key on the record key: concurrent claimants serialize in the
// transaction and exactly one insert lands.
type IdempotencyStore struct {
	db         *bun.DB
	Now        func() time.Time
	DefaultTTL time.Duration
}

func NewIdempotencyStore(db *bun.DB) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &IdempotencyStore{
		db:         db,
		Now:        func() time.Time { return time.Now().UTC() },
		DefaultTTL: idempotency.DefaultTTL,
	}, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string, tenantID string, operation string, ttl time.Duration) (bool, idempotency.Record, error) {
	if s == nil || s.db == nil {
		return false, idempotency.Record{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, idempotency.Record{}, fmt.Errorf("sqlstore: idempotency key is required")
	}
	if ttl <= 0 {
		ttl = s.ttl()
	}

	var (
		won    bool
		record idempotency.Record
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		existing := &idempotencyRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.key = ?", key).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err == nil {
			if now.Before(existing.ExpiresAt) {
				won = false
				record = existing.toDomain()
				return nil
			}
			if _, delErr := tx.NewDelete().
				Model((*idempotencyRecord)(nil)).
				Where("key = ?", key).
				Exec(ctx); delErr != nil {
				return delErr
			}
		}

		fresh := &idempotencyRecord{
			Key:       key,
			TenantID:  strings.TrimSpace(tenantID),
			Operation: strings.TrimSpace(operation),
			Status:    idempotency.StatusInProgress,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		if _, insErr := tx.NewInsert().Model(fresh).Exec(ctx); insErr != nil {
			return insErr
		}
		won = true
		record = fresh.toDomain()
		return nil
	})
	if err != nil {
		return false, idempotency.Record{}, err
	}
	return won, record, nil
}

func (s *IdempotencyStore) Check(ctx context.Context, key string) (idempotency.Record, bool, error) {
	if s == nil || s.db == nil {
		return idempotency.Record{}, false, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	record := &idempotencyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	if !s.now().Before(record.ExpiresAt) {
		// lazy eviction, mirrors the memory store
		_, _ = s.db.NewDelete().
			Model((*idempotencyRecord)(nil)).
			Where("key = ?", record.Key).
			Exec(ctx)
		return idempotency.Record{}, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, result any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlstore: encode idempotency result: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*idempotencyRecord)(nil)).
		Set("status = ?", idempotency.StatusCompleted).
		Set("result = ?", encoded).
		Set("completed_at = ?", s.now()).
		Where("key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := res.RowsAffected(); affErr == nil && affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *IdempotencyStore) Fail(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*idempotencyRecord)(nil)).
		Where("key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *IdempotencyStore) Remove(ctx context.Context, key string) error {
	return s.Fail(ctx, key)
}

func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*idempotencyRecord)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

func (s *IdempotencyStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *IdempotencyStore) ttl() time.Duration {
	if s != nil && s.DefaultTTL > 0 {
		return s.DefaultTTL
	}
	return idempotency.DefaultTTL
}

func (r *idempotencyRecord) toDomain() idempotency.Record {
	if r == nil {
		return idempotency.Record{}
	}
	record := idempotency.Record{
		Key:       r.Key,
		TenantID:  r.TenantID,
		Operation: r.Operation,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if r.CompletedAt != nil {
		record.CompletedAt = *r.CompletedAt
	}
	if len(r.Result) > 0 {
		var decoded any
		if err := json.Unmarshal(r.Result, &decoded); err == nil {
			record.Result = decoded
		}
	}
	return record
}
