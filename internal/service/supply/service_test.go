package supply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, nil, nil), store
}

func seedAnnouncement(t *testing.T, store *memory.Store, ann domain.Announcement) {
	t.Helper()
	err := store.RunTransaction(context.Background(), func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionAnnouncements, ann.ID, ann)
	})
	if err != nil {
		t.Fatalf("seed announcement: %v", err)
	}
}

func TestPublishOffering(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	scheduled := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedAnnouncement(t, store, domain.Announcement{
		ID:          "ann-1",
		OwnerUID:    "owner-1",
		Title:       "Saturday prasadam",
		Description: "kitchari and halava",
		ScheduledAt: scheduled,
	})

	offering, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 10, 250, true)
	if err != nil {
		t.Fatalf("PublishOffering: %v", err)
	}
	if offering.Status != domain.OfferingStatusAvailable {
		t.Fatalf("status = %q, want available", offering.Status)
	}
	if offering.Title != "Saturday prasadam" || offering.AvailableQuantity != 10 || offering.FeeCents != 250 {
		t.Fatalf("unexpected offering: %+v", offering)
	}
	if !offering.LaunchFeeRefund {
		t.Fatal("LaunchFeeRefund not carried over")
	}
	if !offering.AvailableAt.Equal(scheduled) {
		t.Fatalf("AvailableAt = %v, want %v", offering.AvailableAt, scheduled)
	}
	if offering.SourceAnnouncementID != "ann-1" {
		t.Fatalf("SourceAnnouncementID = %q", offering.SourceAnnouncementID)
	}

	doc, err := store.Get(ctx, domain.CollectionAnnouncements, "ann-1")
	if err != nil {
		t.Fatalf("get announcement: %v", err)
	}
	var ann domain.Announcement
	if err := doc.Decode(&ann); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if ann.PublishedOfferingID != offering.ID {
		t.Fatalf("PublishedOfferingID = %q, want %q", ann.PublishedOfferingID, offering.ID)
	}
	if ann.PublishedAt == nil {
		t.Fatal("PublishedAt not stamped")
	}

	docs, err := store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOutbox,
		Filters:    []docstore.Filter{{Field: "eventType", Value: "offering.published"}},
	})
	if err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("outbox events = %d, want 1", len(docs))
	}
}

func TestPublishOffering_Twice(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	seedAnnouncement(t, store, domain.Announcement{
		ID:          "ann-1",
		OwnerUID:    "owner-1",
		Title:       "Sunday feast",
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})

	if _, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 5, 0, false); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	_, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 5, 0, false)
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second publish err = %v, want ConflictError", err)
	}
}

func TestPublishOffering_Validation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	seedAnnouncement(t, store, domain.Announcement{
		ID:          "ann-1",
		OwnerUID:    "owner-1",
		Title:       "Feast",
		ScheduledAt: time.Now(),
	})

	var verr domain.ValidationError
	if _, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 0, 100, false); !errors.As(err, &verr) {
		t.Fatalf("zero quantity err = %v, want ValidationError", err)
	}
	if _, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 5, -1, false); !errors.As(err, &verr) {
		t.Fatalf("negative fee err = %v, want ValidationError", err)
	}
	if _, err := svc.PublishOffering(ctx, "other", "ann-1", 5, 100, false); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("wrong owner err = %v, want ErrForbidden", err)
	}
	if _, err := svc.PublishOffering(ctx, "owner-1", "missing", 5, 100, false); !errors.Is(err, domain.ErrAnnouncementNotFound) {
		t.Fatalf("missing announcement err = %v, want ErrAnnouncementNotFound", err)
	}
}

func TestUpdateOffering(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	seedAnnouncement(t, store, domain.Announcement{
		ID: "ann-1", OwnerUID: "owner-1", Title: "Feast", ScheduledAt: time.Now(),
	})
	offering, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 5, 100, false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	title := "Updated feast"
	qty := 0
	updated, err := svc.UpdateOffering(ctx, "owner-1", offering.ID, OfferingUpdate{
		Title:             &title,
		AvailableQuantity: &qty,
	})
	if err != nil {
		t.Fatalf("UpdateOffering: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("title = %q, want %q", updated.Title, title)
	}
	if updated.Status != domain.OfferingStatusSoldOut {
		t.Fatalf("status = %q, want sold-out when quantity hits zero", updated.Status)
	}

	if _, err := svc.UpdateOffering(ctx, "other", offering.ID, OfferingUpdate{Title: &title}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("wrong owner err = %v, want ErrForbidden", err)
	}
	if _, err := svc.UpdateOffering(ctx, "owner-1", "missing", OfferingUpdate{}); !errors.Is(err, domain.ErrOfferingNotFound) {
		t.Fatalf("missing offering err = %v, want ErrOfferingNotFound", err)
	}
}

func TestDeleteOffering(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	seedAnnouncement(t, store, domain.Announcement{
		ID: "ann-1", OwnerUID: "owner-1", Title: "Feast", ScheduledAt: time.Now(),
	})
	offering, err := svc.PublishOffering(ctx, "owner-1", "ann-1", 5, 100, false)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := svc.DeleteOffering(ctx, "other", offering.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("wrong owner err = %v, want ErrForbidden", err)
	}
	if err := svc.DeleteOffering(ctx, "owner-1", offering.ID); err != nil {
		t.Fatalf("DeleteOffering: %v", err)
	}
	if _, err := store.Get(ctx, domain.CollectionOfferings, offering.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("offering still present, err = %v", err)
	}
	if err := svc.DeleteOffering(ctx, "owner-1", offering.ID); !errors.Is(err, domain.ErrOfferingNotFound) {
		t.Fatalf("second delete err = %v, want ErrOfferingNotFound", err)
	}
}

func TestListOfferings_StatusFilter(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	offerings := []domain.Offering{
		{ID: "o1", OwnerUID: "a", Status: domain.OfferingStatusAvailable},
		{ID: "o2", OwnerUID: "a", Status: domain.OfferingStatusClosed},
		{ID: "o3", OwnerUID: "b", Status: domain.OfferingStatusAvailable},
	}
	err := store.RunTransaction(ctx, func(tx docstore.Tx) error {
		for _, o := range offerings {
			if err := tx.Create(domain.CollectionOfferings, o.ID, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed offerings: %v", err)
	}

	all, err := svc.ListOfferings(ctx, "")
	if err != nil {
		t.Fatalf("ListOfferings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	available, err := svc.ListOfferings(ctx, "available")
	if err != nil {
		t.Fatalf("ListOfferings(available): %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("available = %d, want 2", len(available))
	}

	mine, err := svc.ListOwnerOfferings(ctx, "a")
	if err != nil {
		t.Fatalf("ListOwnerOfferings: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("owner a = %d, want 2", len(mine))
	}
}

func TestBatches(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var verr domain.ValidationError
	if _, err := svc.CreateBatch(ctx, "owner-1", BatchInput{Quantity: 5}); !errors.As(err, &verr) {
		t.Fatalf("missing title err = %v, want ValidationError", err)
	}
	if _, err := svc.CreateBatch(ctx, "owner-1", BatchInput{Title: "Rice", Quantity: 0}); !errors.As(err, &verr) {
		t.Fatalf("zero quantity err = %v, want ValidationError", err)
	}

	batch, err := svc.CreateBatch(ctx, "owner-1", BatchInput{Title: "Rice 25kg", Quantity: 25, Notes: "basmati"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if batch.RemainingQuantity != 25 || batch.Status != "active" {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	if _, err := svc.CreateBatch(ctx, "other", BatchInput{Title: "Flour", Quantity: 10}); err != nil {
		t.Fatalf("CreateBatch other owner: %v", err)
	}

	batches, err := svc.ListBatches(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 1 || batches[0].ID != batch.ID {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

func TestAnnouncements(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var verr domain.ValidationError
	if _, err := svc.CreateAnnouncement(ctx, "owner-1", AnnouncementInput{ScheduledAt: time.Now()}); !errors.As(err, &verr) {
		t.Fatalf("missing title err = %v, want ValidationError", err)
	}
	if _, err := svc.CreateAnnouncement(ctx, "owner-1", AnnouncementInput{Title: "Feast"}); !errors.As(err, &verr) {
		t.Fatalf("missing scheduledAt err = %v, want ValidationError", err)
	}

	ann, err := svc.CreateAnnouncement(ctx, "owner-1", AnnouncementInput{
		Title:       "Sunday feast",
		ScheduledAt: time.Date(2026, 5, 3, 13, 0, 0, 0, time.UTC),
		Notes:       "owner-only prep list",
	})
	if err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}

	forStudents, err := svc.ListAnnouncements(ctx, "", true)
	if err != nil {
		t.Fatalf("ListAnnouncements(students): %v", err)
	}
	if len(forStudents) != 1 {
		t.Fatalf("students list = %d, want 1", len(forStudents))
	}
	if forStudents[0].Notes != "" {
		t.Fatal("private notes leaked to students")
	}

	forOwner, err := svc.ListAnnouncements(ctx, "owner-1", false)
	if err != nil {
		t.Fatalf("ListAnnouncements(owner): %v", err)
	}
	if forOwner[0].Notes != "owner-only prep list" {
		t.Fatalf("owner notes = %q", forOwner[0].Notes)
	}

	if err := svc.DeleteAnnouncement(ctx, "other", ann.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("wrong owner err = %v, want ErrForbidden", err)
	}
	if err := svc.DeleteAnnouncement(ctx, "owner-1", ann.ID); err != nil {
		t.Fatalf("DeleteAnnouncement: %v", err)
	}
	if err := svc.DeleteAnnouncement(ctx, "owner-1", ann.ID); !errors.Is(err, domain.ErrAnnouncementNotFound) {
		t.Fatalf("second delete err = %v, want ErrAnnouncementNotFound", err)
	}
}
