package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, nil, nil), store
}

func seedUser(t *testing.T, store *memory.Store, uid string) {
	t.Helper()
	user := domain.User{
		UID:          uid,
		Name:         "Test User",
		PhoneNumber:  "+14155550101",
		Role:         domain.RoleStudent,
		Subscription: domain.Subscription{Waived: true},
		CreatedAt:    time.Now().UTC(),
	}
	err := store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionUsers, uid, user)
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", uid, err)
	}
}

func seedOffering(t *testing.T, store *memory.Store, id string, qty int) {
	t.Helper()
	offering := domain.Offering{
		ID:                id,
		OwnerUID:          "owner-1",
		Title:             "Thali",
		Status:            domain.OfferingStatusAvailable,
		AvailableQuantity: qty,
		FeeCents:          250,
		LaunchFeeRefund:   true,
		CreatedAt:         time.Now().UTC(),
	}
	err := store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionOfferings, id, offering)
	})
	if err != nil {
		t.Fatalf("seed offering %s: %v", id, err)
	}
}

func offeringState(t *testing.T, store *memory.Store, id string) domain.Offering {
	t.Helper()
	doc, err := store.Get(context.Background(), domain.CollectionOfferings, id)
	if err != nil {
		t.Fatalf("get offering %s: %v", id, err)
	}
	var offering domain.Offering
	if err := doc.Decode(&offering); err != nil {
		t.Fatalf("decode offering: %v", err)
	}
	return offering
}

func TestCreate_ReservesAndDenormalizes(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 3)

	order, err := svc.Create(ctx, "u-1", "off-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("Status = %s, want pending", order.Status)
	}
	if order.QRToken == "" {
		t.Error("QRToken is empty, want token issued at creation")
	}
	if order.OfferingTitle != "Thali" || order.OwnerUID != "owner-1" || order.FeeCents != 250 {
		t.Errorf("denormalized snapshot = %+v", order)
	}
	if !order.FeeRefundEligible {
		t.Error("FeeRefundEligible = false, want launch refund snapshot")
	}
	if !order.SubscriptionWaived {
		t.Error("SubscriptionWaived = false, want user subscription snapshot")
	}

	offering := offeringState(t, store, "off-1")
	if offering.AvailableQuantity != 2 {
		t.Errorf("AvailableQuantity = %d, want 2", offering.AvailableQuantity)
	}
}

func TestCreate_LastUnitSellsOut(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 1)

	if _, err := svc.Create(ctx, "u-1", "off-1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	offering := offeringState(t, store, "off-1")
	if offering.Status != domain.OfferingStatusSoldOut {
		t.Errorf("Status = %s, want sold-out", offering.Status)
	}

	if _, err := svc.Create(ctx, "u-1", "off-1"); !errors.Is(err, domain.ErrSoldOut) {
		t.Errorf("Create() on sold-out error = %v, want ErrSoldOut", err)
	}
}

func TestCreate_NoOversellUnderConcurrency(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")

	const qty = 5
	const attempts = 20
	seedOffering(t, store, "off-1", qty)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			for {
				_, err := svc.Create(ctx, "u-1", "off-1")
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				if errors.Is(err, domain.ErrSoldOut) {
					return
				}
				if errors.Is(err, domain.ErrUnavailable) {
					continue // честный retry, как предписано вызывающим
				}
				t.Errorf("unexpected error: %v", err)
				return
			}
		}()
	}
	wg.Wait()

	if succeeded != qty {
		t.Errorf("succeeded = %d, want exactly %d (no oversell)", succeeded, qty)
	}
	offering := offeringState(t, store, "off-1")
	if offering.AvailableQuantity != 0 {
		t.Errorf("AvailableQuantity = %d, want 0", offering.AvailableQuantity)
	}
	if offering.Status != domain.OfferingStatusSoldOut {
		t.Errorf("Status = %s, want sold-out", offering.Status)
	}
}

func TestCancel_RestoresAvailability(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 1)

	order, err := svc.Create(ctx, "u-1", "off-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cancelled, err := svc.Cancel(ctx, order.ID, "u-1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Error("CancelledAt is nil")
	}

	offering := offeringState(t, store, "off-1")
	if offering.AvailableQuantity != 1 {
		t.Errorf("AvailableQuantity = %d, want 1 (restored)", offering.AvailableQuantity)
	}
	if offering.Status != domain.OfferingStatusAvailable {
		t.Errorf("Status = %s, want available again", offering.Status)
	}

	// Второй покупатель успевает забрать восстановленную единицу.
	seedUser(t, store, "u-2")
	if _, err := svc.Create(ctx, "u-2", "off-1"); err != nil {
		t.Errorf("Create() after restore error = %v", err)
	}
}

func TestCancel_SecondCancelDoesNotDoubleRestore(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 2)

	order, err := svc.Create(ctx, "u-1", "off-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Cancel(ctx, order.ID, "u-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if _, err := svc.Cancel(ctx, order.ID, "u-1"); !errors.Is(err, domain.ErrOrderTerminal) {
		t.Errorf("second Cancel() error = %v, want ErrOrderTerminal", err)
	}

	offering := offeringState(t, store, "off-1")
	if offering.AvailableQuantity != 2 {
		t.Errorf("AvailableQuantity = %d, want 2 (restored exactly once)", offering.AvailableQuantity)
	}
}

func TestCancel_Forbidden(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 1)

	order, err := svc.Create(ctx, "u-1", "off-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Cancel(ctx, order.ID, "intruder"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Cancel() by stranger error = %v, want ErrForbidden", err)
	}
}

func TestCancel_SurvivesDeletedOffering(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 1)

	order, err := svc.Create(ctx, "u-1", "off-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Delete(domain.CollectionOfferings, "off-1")
	})
	if err != nil {
		t.Fatalf("delete offering: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, order.ID, "u-1")
	if err != nil {
		t.Fatalf("Cancel() after offering deletion error = %v", err)
	}
	if cancelled.OfferingTitle != "Thali" {
		t.Errorf("OfferingTitle = %q, denormalized snapshot must survive", cancelled.OfferingTitle)
	}
}

func TestListForUser_NewestFirstCapped(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 100)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	var last domain.Order
	for i := 0; i < 3; i++ {
		order, err := svc.Create(ctx, "u-1", "off-1")
		if err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
		last = order
	}

	orders, err := svc.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("len(orders) = %d, want 3", len(orders))
	}
	if orders[0].ID != last.ID {
		t.Errorf("orders[0].ID = %s, want newest order %s first", orders[0].ID, last.ID)
	}
}

func TestCreate_EmitsOutboxEvents(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "u-1")
	seedOffering(t, store, "off-1", 1)

	if _, err := svc.Create(ctx, "u-1", "off-1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	docs, err := store.Query(ctx, docstore.Query{Collection: domain.CollectionOutbox})
	if err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	types := map[string]bool{}
	for _, doc := range docs {
		var msg domain.OutboxMessage
		if err := doc.Decode(&msg); err != nil {
			t.Fatalf("decode outbox message: %v", err)
		}
		types[msg.EventType] = true
	}
	if !types["order.created"] {
		t.Error("missing order.created outbox event")
	}
	if !types["offering.sold_out"] {
		t.Error("missing offering.sold_out outbox event (last unit)")
	}
}
