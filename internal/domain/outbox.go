package domain

import (
	"context"
	"encoding/json"
	"time"
)

// OutboxStatus — состояние записи transactional outbox.
type OutboxStatus string

const (
	// OutboxStatusPending — запись ждёт публикации в брокер.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusSent — запись опубликована.
	OutboxStatusSent OutboxStatus = "sent"
	// OutboxStatusFailed — публикация не удалась после всех повторов.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMessage — событие ленты изменений, записанное в той же транзакции,
// что и породившая его мутация.
type OutboxMessage struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет читать и помечать события для публикации.
// Сами записи создаются внутри транзакций сервисов движка.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}
