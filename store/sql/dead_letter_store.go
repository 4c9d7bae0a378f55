package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
)

type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterRecord](db, uuidHandlers[deadLetterRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

func (s *DeadLetterStore) Save(ctx context.Context, letter dlq.DeadLetter) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	_, err := s.db.NewInsert().
		Model(newDeadLetterRecord(letter)).
		Exec(ctx)
	return err
}

func (s *DeadLetterStore) Get(ctx context.Context, id string) (dlq.DeadLetter, error) {
	if s == nil || s.db == nil {
		return dlq.DeadLetter{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	record := &deadLetterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dlq.DeadLetter{}, core.ErrNotFound
		}
		return dlq.DeadLetter{}, err
	}
	return record.toDomain(), nil
}

// Update applies the mutation inside a transaction so concurrent replay
// workers serialize on the letter.
func (s *DeadLetterStore) Update(ctx context.Context, id string, mutate func(dlq.DeadLetter) (dlq.DeadLetter, error)) (dlq.DeadLetter, error) {
	if s == nil || s.db == nil {
		return dlq.DeadLetter{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}

	var updated dlq.DeadLetter
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &deadLetterRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrNotFound
			}
			return err
		}

		mutated, err := mutate(record.toDomain())
		if err != nil {
			return err
		}
		mutated.ID = record.ID

		next := newDeadLetterRecord(mutated)
		next.CreatedAt = record.CreatedAt
		if _, err := tx.NewUpdate().Model(next).WherePK().Exec(ctx); err != nil {
			return err
		}
		updated = next.toDomain()
		return nil
	})
	if err != nil {
		return dlq.DeadLetter{}, err
	}
	return updated, nil
}

func (s *DeadLetterStore) ListByStatus(ctx context.Context, tenantID, adapterName string, statuses []dlq.Status, limit int) ([]dlq.DeadLetter, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("created_at ASC")}
	if tenantID != "" {
		criteria = append(criteria, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if adapterName != "" {
		criteria = append(criteria, repository.SelectBy("adapter_name", "=", adapterName))
	}
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status IN (?)", bun.In(values))
		}))
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]dlq.DeadLetter, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *DeadLetterStore) Purge(ctx context.Context, adapterName string, statuses []dlq.Status, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	query := s.db.NewDelete().
		Model((*deadLetterRecord)(nil)).
		Where("status IN (?)", bun.In(values)).
		Where("updated_at <= ?", cutoff)
	if adapterName != "" {
		query = query.Where("adapter_name = ?", adapterName)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}
