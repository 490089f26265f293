package docrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
)

// IdempotencyRepository хранит записи idempotency-key в документной коллекции.
type IdempotencyRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий поверх документного хранилища.
func NewIdempotencyRepository(store docstore.Store) *IdempotencyRepository {
	return &IdempotencyRepository{store: store, now: time.Now}
}

// CreateProcessing регистрирует ключ в статусе processing. Если ключ уже
// занят, возвращает существующую запись и ErrIdempotencyKeyAlreadyExists.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now().UTC()
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionIdempotency, key, record)
	})
	if errors.Is(err, docstore.ErrExists) {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, getErr
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record %s: %w", key, err)
	}
	return record, nil
}

// Get возвращает запись по ключу или ErrIdempotencyKeyNotFound.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	doc, err := r.store.Get(ctx, domain.CollectionIdempotency, key)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record %s: %w", key, err)
	}

	var record domain.IdempotencyRecord
	if err := doc.Decode(&record); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return record, nil
}

// MarkDone сохраняет успешный ответ для повторной выдачи.
func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет ошибочный ответ, чтобы повтор не выполнял мутацию заново.
func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *IdempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionIdempotency, key)
		if err != nil {
			return err
		}
		var record domain.IdempotencyRecord
		if err := doc.Decode(&record); err != nil {
			return fmt.Errorf("decode idempotency record %s: %w", key, err)
		}
		record.Status = status
		record.ResponseBody = responseBody
		record.HTTPStatus = httpStatus
		record.UpdatedAt = r.now().UTC()
		return tx.Update(domain.CollectionIdempotency, key, record)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrIdempotencyKeyNotFound
	}
	return err
}

// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionIdempotency,
		OrderBy:    "ttlAt",
		Limit:      limit,
	})
	if err != nil {
		return 0, fmt.Errorf("query idempotency records: %w", err)
	}

	deleted := 0
	for _, doc := range docs {
		var record domain.IdempotencyRecord
		if err := doc.Decode(&record); err != nil {
			continue
		}
		if !record.TTLAt.Before(before) {
			break
		}
		err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			return tx.Delete(domain.CollectionIdempotency, record.Key)
		})
		if err != nil {
			return deleted, fmt.Errorf("delete expired idempotency record %s: %w", record.Key, err)
		}
		deleted++
	}
	return deleted, nil
}
