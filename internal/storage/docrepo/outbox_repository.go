// Package docrepo реализует репозитории служебных коллекций (outbox,
// idempotency) поверх docstore.Store, поэтому работает одинаково и с
// памятью, и с PostgreSQL.
package docrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
)

// OutboxRepository читает и помечает события transactional outbox.
type OutboxRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewOutboxRepository создаёт репозиторий поверх документного хранилища.
func NewOutboxRepository(store docstore.Store) *OutboxRepository {
	return &OutboxRepository{store: store, now: time.Now}
}

// AppendTx записывает событие в outbox внутри уже открытой транзакции.
// Вызывается сервисами движка вместе с породившей событие мутацией.
func AppendTx(tx docstore.Tx, msg domain.OutboxMessage, now time.Time) error {
	msg.Status = domain.OutboxStatusPending
	msg.CreatedAt = now.UTC()
	msg.UpdatedAt = msg.CreatedAt
	if err := tx.Create(domain.CollectionOutbox, msg.ID, msg); err != nil {
		return fmt.Errorf("append outbox message %s: %w", msg.ID, err)
	}
	return nil
}

// PullPending возвращает не более limit неопубликованных событий,
// старые раньше новых.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOutbox,
		Filters:    []docstore.Filter{{Field: "status", Value: string(domain.OutboxStatusPending)}},
		OrderBy:    "createdAt",
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}

	messages := make([]domain.OutboxMessage, 0, len(docs))
	for _, doc := range docs {
		var msg domain.OutboxMessage
		if err := doc.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode outbox message %s: %w", doc.ID, err)
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// Stats возвращает размер и возраст backlog для метрик.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOutbox,
		Filters:    []docstore.Filter{{Field: "status", Value: string(domain.OutboxStatusPending)}},
	})
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: len(docs)}
	for _, doc := range docs {
		var msg domain.OutboxMessage
		if err := doc.Decode(&msg); err != nil {
			continue
		}
		if stats.OldestPendingAt.IsZero() || msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = msg.CreatedAt
		}
	}
	return stats, nil
}

// MarkSent помечает событие опубликованным.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusSent)
}

// MarkFailed увеличивает счётчик попыток и помечает событие сбойным.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.OutboxStatusFailed)
}

func (r *OutboxRepository) transition(ctx context.Context, id string, status domain.OutboxStatus) error {
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionOutbox, id)
		if err != nil {
			return err
		}
		var msg domain.OutboxMessage
		if err := doc.Decode(&msg); err != nil {
			return fmt.Errorf("decode outbox message %s: %w", id, err)
		}
		msg.Status = status
		// Attempts учитывает только исчерпанные циклы доставки: успешная
		// публикация не расходует бюджет повторов.
		if status == domain.OutboxStatusFailed {
			msg.Attempts++
		}
		msg.UpdatedAt = r.now().UTC()
		return tx.Update(domain.CollectionOutbox, id, msg)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return err
}
