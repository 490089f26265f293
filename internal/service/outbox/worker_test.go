package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/storage/docrepo"
	"github.com/prasadamconnect/engine/internal/storage/memory"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	failFirst int
	failAll   bool
}

func (p *fakePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	if p.failFirst > 0 {
		p.failFirst--
		return errors.New("transient broker error")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) events() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.published...)
}

func seedOutbox(t *testing.T, store *memory.Store, ids ...string) *docrepo.OutboxRepository {
	t.Helper()
	repo := docrepo.NewOutboxRepository(store)
	for i, id := range ids {
		msg := domain.OutboxMessage{
			ID:            id,
			AggregateType: "order",
			AggregateID:   "ord-" + id,
			EventType:     "order.created",
			Payload:       json.RawMessage(`{"orderId":"` + id + `"}`),
		}
		created := time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC)
		err := store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
			return docrepo.AppendTx(tx, msg, created)
		})
		if err != nil {
			t.Fatalf("seed outbox %s: %v", id, err)
		}
	}
	return repo
}

func TestWorker_DrainsBacklog(t *testing.T) {
	store := memory.NewStore()
	repo := seedOutbox(t, store, "m1", "m2", "m3")
	pub := &fakePublisher{}

	worker := NewWorker(repo, pub, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	events := pub.events()
	if len(events) != 3 {
		t.Fatalf("published = %d, want 3", len(events))
	}
	if events[0].ID != "m1" || events[2].ID != "m3" {
		t.Fatalf("publish order = %v, want oldest first", []string{events[0].ID, events[1].ID, events[2].ID})
	}

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("pending after drain = %d, want 0", stats.PendingCount)
	}
}

func TestWorker_RetriesTransientError(t *testing.T) {
	store := memory.NewStore()
	repo := seedOutbox(t, store, "m1")
	pub := &fakePublisher{failFirst: 2}

	worker := NewWorker(repo, pub, WithMaxAttempts(3), WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(pub.events()) != 1 {
		t.Fatalf("published = %d, want 1 after retries", len(pub.events()))
	}
}

func TestWorker_ExhaustedRetriesGoToDLQ(t *testing.T) {
	store := memory.NewStore()
	repo := seedOutbox(t, store, "m1")
	pub := &fakePublisher{failAll: true}
	dlq := &fakePublisher{}

	worker := NewWorker(repo, pub, WithMaxAttempts(2), WithRetryBaseDelay(0), WithDLQPublisher(dlq))
	worker.ProcessOnce(context.Background())

	dlqEvents := dlq.events()
	if len(dlqEvents) != 1 {
		t.Fatalf("dlq events = %d, want 1", len(dlqEvents))
	}
	if dlqEvents[0].ID != "m1" {
		t.Fatalf("dlq event id = %q", dlqEvents[0].ID)
	}

	var envelope map[string]any
	if err := json.Unmarshal(dlqEvents[0].Payload, &envelope); err != nil {
		t.Fatalf("unmarshal dlq payload: %v", err)
	}
	if envelope["publish_error"] == "" {
		t.Fatal("dlq payload missing publish_error")
	}

	doc, err := store.Get(context.Background(), domain.CollectionOutbox, "m1")
	if err != nil {
		t.Fatalf("get outbox record: %v", err)
	}
	var msg domain.OutboxMessage
	if err := doc.Decode(&msg); err != nil {
		t.Fatalf("decode outbox record: %v", err)
	}
	if msg.Status != domain.OutboxStatusFailed {
		t.Fatalf("status = %q, want failed", msg.Status)
	}

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("pending = %d, failed record must leave the backlog", stats.PendingCount)
	}
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	store := memory.NewStore()
	repo := seedOutbox(t, store, "m1")
	pub := &fakePublisher{}

	worker := NewWorker(repo, pub, WithPollInterval(5*time.Millisecond), WithRetryBaseDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(pub.events()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not publish within deadline")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRetryBackoff(t *testing.T) {
	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))

	if got := worker.retryBackoff(1); got != 10*time.Millisecond {
		t.Fatalf("attempt 1 backoff = %v", got)
	}
	if got := worker.retryBackoff(2); got != 20*time.Millisecond {
		t.Fatalf("attempt 2 backoff = %v", got)
	}
	if got := worker.retryBackoff(3); got != 40*time.Millisecond {
		t.Fatalf("attempt 3 backoff = %v", got)
	}
}
