// Package supply реализует операции владельца поставок: анонсы будущих
// предложений, их публикацию в живые предложения, правки витрины и
// информационные партии поставок.
package supply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/metrics"
	"github.com/prasadamconnect/engine/internal/storage/docrepo"
)

// OfferingUpdate — частичная правка предложения владельцем. nil-поле не
// трогается; количество задаётся абсолютным значением.
type OfferingUpdate struct {
	Title             *string
	Description       *string
	Status            *domain.OfferingStatus
	AvailableQuantity *int
	FeeCents          *int64
}

// BatchInput — входные данные партии поставки.
type BatchInput struct {
	Title        string
	Quantity     int
	ExpirationAt *time.Time
	Notes        string
}

// AnnouncementInput — входные данные анонса.
type AnnouncementInput struct {
	Title               string
	Description         string
	ScheduledAt         time.Time
	Notes               string
	ShowNotesToStudents bool
}

// Service — сервис операций поставок.
type Service struct {
	store   docstore.Store
	logger  *log.Entry
	metrics *metrics.EngineMetrics
	now     func() time.Time
}

// NewService создаёт сервис поставок.
func NewService(store docstore.Store, em *metrics.EngineMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "supply")
	}
	return &Service{store: store, logger: logger, metrics: em, now: time.Now}
}

// ListOfferings возвращает публичную витрину. Пустой status — все
// предложения, иначе фильтр по статусу.
func (s *Service) ListOfferings(ctx context.Context, status string) ([]domain.Offering, error) {
	q := docstore.Query{
		Collection: domain.CollectionOfferings,
		OrderBy:    "availableAt",
		Desc:       true,
	}
	if status != "" {
		q.Filters = []docstore.Filter{{Field: "status", Value: status}}
	}
	return s.queryOfferings(ctx, q)
}

// ListOwnerOfferings возвращает предложения владельца.
func (s *Service) ListOwnerOfferings(ctx context.Context, ownerUID string) ([]domain.Offering, error) {
	return s.queryOfferings(ctx, docstore.Query{
		Collection: domain.CollectionOfferings,
		Filters:    []docstore.Filter{{Field: "ownerUid", Value: ownerUID}},
		OrderBy:    "createdAt",
		Desc:       true,
	})
}

// PublishOffering превращает анонс в живое предложение: создаёт offering
// со статусом available и проставляет в анонсе ссылку на публикацию.
func (s *Service) PublishOffering(ctx context.Context, ownerUID, announcementID string, quantity int, feeCents int64, launchFeeRefund bool) (domain.Offering, error) {
	if quantity <= 0 {
		return domain.Offering{}, domain.ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}
	if feeCents < 0 {
		return domain.Offering{}, domain.ValidationError{Field: "feeCents", Reason: "feeCents must not be negative"}
	}

	var published domain.Offering
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionAnnouncements, announcementID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrAnnouncementNotFound
		}
		if err != nil {
			return err
		}
		var ann domain.Announcement
		if err := doc.Decode(&ann); err != nil {
			return fmt.Errorf("decode announcement %s: %w", announcementID, err)
		}
		if ann.OwnerUID != ownerUID {
			return domain.ErrForbidden
		}
		if ann.PublishedOfferingID != "" {
			return domain.ConflictError{Field: "announcement"}
		}

		now := s.now().UTC()
		offering := domain.Offering{
			ID:                   uuid.NewString(),
			OwnerUID:             ownerUID,
			Title:                ann.Title,
			Description:          ann.Description,
			Status:               domain.OfferingStatusAvailable,
			AvailableAt:          ann.ScheduledAt,
			AvailableQuantity:    quantity,
			FeeCents:             feeCents,
			LaunchFeeRefund:      launchFeeRefund,
			SourceAnnouncementID: announcementID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.Create(domain.CollectionOfferings, offering.ID, offering); err != nil {
			return err
		}

		ann.PublishedOfferingID = offering.ID
		ann.PublishedAt = &now
		ann.UpdatedAt = now
		if err := tx.Update(domain.CollectionAnnouncements, announcementID, ann); err != nil {
			return err
		}

		published = offering
		return s.enqueueOfferingEvent(tx, offering, "offering.published", now)
	})
	if err != nil {
		return domain.Offering{}, s.mapErr(err)
	}

	s.logger.WithFields(log.Fields{
		"offering_id":     published.ID,
		"announcement_id": announcementID,
		"owner_uid":       ownerUID,
	}).Info("offering published")
	return published, nil
}

// UpdateOffering правит предложение владельца.
func (s *Service) UpdateOffering(ctx context.Context, ownerUID, offeringID string, update OfferingUpdate) (domain.Offering, error) {
	if update.AvailableQuantity != nil && *update.AvailableQuantity < 0 {
		return domain.Offering{}, domain.ValidationError{Field: "availableQuantity", Reason: "quantity must not be negative"}
	}

	var updated domain.Offering
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		offering, err := s.ownedOffering(tx, ownerUID, offeringID)
		if err != nil {
			return err
		}

		if update.Title != nil {
			offering.Title = *update.Title
		}
		if update.Description != nil {
			offering.Description = *update.Description
		}
		if update.Status != nil {
			offering.Status = *update.Status
		}
		if update.AvailableQuantity != nil {
			offering.AvailableQuantity = *update.AvailableQuantity
			if offering.AvailableQuantity == 0 && offering.Orderable() {
				offering.Status = domain.OfferingStatusSoldOut
			}
		}
		if update.FeeCents != nil {
			offering.FeeCents = *update.FeeCents
		}

		now := s.now().UTC()
		offering.UpdatedAt = now
		if err := tx.Update(domain.CollectionOfferings, offeringID, offering); err != nil {
			return err
		}
		updated = offering
		return s.enqueueOfferingEvent(tx, offering, "offering.updated", now)
	})
	if err != nil {
		return domain.Offering{}, s.mapErr(err)
	}
	return updated, nil
}

// DeleteOffering удаляет предложение владельца. История заказов переживает
// удаление за счёт денормализованных снимков.
func (s *Service) DeleteOffering(ctx context.Context, ownerUID, offeringID string) error {
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		offering, err := s.ownedOffering(tx, ownerUID, offeringID)
		if err != nil {
			return err
		}
		if err := tx.Delete(domain.CollectionOfferings, offeringID); err != nil {
			return err
		}
		return s.enqueueOfferingEvent(tx, offering, "offering.deleted", s.now().UTC())
	})
	return s.mapErr(err)
}

// CreateBatch создаёт информационную партию поставки.
func (s *Service) CreateBatch(ctx context.Context, ownerUID string, input BatchInput) (domain.SupplyBatch, error) {
	if input.Title == "" {
		return domain.SupplyBatch{}, domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if input.Quantity <= 0 {
		return domain.SupplyBatch{}, domain.ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}

	now := s.now().UTC()
	batch := domain.SupplyBatch{
		ID:                uuid.NewString(),
		OwnerUID:          ownerUID,
		Title:             input.Title,
		Quantity:          input.Quantity,
		RemainingQuantity: input.Quantity,
		ExpirationAt:      input.ExpirationAt,
		Notes:             input.Notes,
		Status:            "active",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionSupplyBatches, batch.ID, batch)
	})
	if err != nil {
		return domain.SupplyBatch{}, s.mapErr(err)
	}
	return batch, nil
}

// ListBatches возвращает партии владельца, новые раньше старых.
func (s *Service) ListBatches(ctx context.Context, ownerUID string) ([]domain.SupplyBatch, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionSupplyBatches,
		Filters:    []docstore.Filter{{Field: "ownerUid", Value: ownerUID}},
		OrderBy:    "createdAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("query supply batches: %w", err)
	}

	batches := make([]domain.SupplyBatch, 0, len(docs))
	for _, doc := range docs {
		var batch domain.SupplyBatch
		if err := doc.Decode(&batch); err != nil {
			return nil, fmt.Errorf("decode batch %s: %w", doc.ID, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// CreateAnnouncement создаёт анонс будущего предложения.
func (s *Service) CreateAnnouncement(ctx context.Context, ownerUID string, input AnnouncementInput) (domain.Announcement, error) {
	if input.Title == "" {
		return domain.Announcement{}, domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if input.ScheduledAt.IsZero() {
		return domain.Announcement{}, domain.ValidationError{Field: "scheduledAt", Reason: "scheduledAt is required"}
	}

	now := s.now().UTC()
	ann := domain.Announcement{
		ID:                  uuid.NewString(),
		OwnerUID:            ownerUID,
		Title:               input.Title,
		Description:         input.Description,
		ScheduledAt:         input.ScheduledAt.UTC(),
		Notes:               input.Notes,
		ShowNotesToStudents: input.ShowNotesToStudents,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionAnnouncements, ann.ID, ann)
	})
	if err != nil {
		return domain.Announcement{}, s.mapErr(err)
	}
	return ann, nil
}

// ListAnnouncements возвращает анонсы. forStudents скрывает приватные
// заметки владельца.
func (s *Service) ListAnnouncements(ctx context.Context, ownerUID string, forStudents bool) ([]domain.Announcement, error) {
	q := docstore.Query{
		Collection: domain.CollectionAnnouncements,
		OrderBy:    "scheduledAt",
	}
	if ownerUID != "" {
		q.Filters = []docstore.Filter{{Field: "ownerUid", Value: ownerUID}}
	}

	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}

	anns := make([]domain.Announcement, 0, len(docs))
	for _, doc := range docs {
		var ann domain.Announcement
		if err := doc.Decode(&ann); err != nil {
			return nil, fmt.Errorf("decode announcement %s: %w", doc.ID, err)
		}
		if forStudents && !ann.ShowNotesToStudents {
			ann.Notes = ""
		}
		anns = append(anns, ann)
	}
	return anns, nil
}

// DeleteAnnouncement удаляет анонс владельца.
func (s *Service) DeleteAnnouncement(ctx context.Context, ownerUID, announcementID string) error {
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionAnnouncements, announcementID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrAnnouncementNotFound
		}
		if err != nil {
			return err
		}
		var ann domain.Announcement
		if err := doc.Decode(&ann); err != nil {
			return fmt.Errorf("decode announcement %s: %w", announcementID, err)
		}
		if ann.OwnerUID != ownerUID {
			return domain.ErrForbidden
		}
		return tx.Delete(domain.CollectionAnnouncements, announcementID)
	})
	return s.mapErr(err)
}

func (s *Service) ownedOffering(tx docstore.Tx, ownerUID, offeringID string) (domain.Offering, error) {
	doc, err := tx.Get(domain.CollectionOfferings, offeringID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Offering{}, domain.ErrOfferingNotFound
	}
	if err != nil {
		return domain.Offering{}, err
	}
	var offering domain.Offering
	if err := doc.Decode(&offering); err != nil {
		return domain.Offering{}, fmt.Errorf("decode offering %s: %w", offeringID, err)
	}
	if offering.OwnerUID != ownerUID {
		return domain.Offering{}, domain.ErrForbidden
	}
	return offering, nil
}

func (s *Service) queryOfferings(ctx context.Context, q docstore.Query) ([]domain.Offering, error) {
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query offerings: %w", err)
	}

	offerings := make([]domain.Offering, 0, len(docs))
	for _, doc := range docs {
		var offering domain.Offering
		if err := doc.Decode(&offering); err != nil {
			return nil, fmt.Errorf("decode offering %s: %w", doc.ID, err)
		}
		offerings = append(offerings, offering)
	}
	return offerings, nil
}

func (s *Service) enqueueOfferingEvent(tx docstore.Tx, offering domain.Offering, eventType string, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"offeringId":        offering.ID,
		"ownerUid":          offering.OwnerUID,
		"status":            string(offering.Status),
		"availableQuantity": offering.AvailableQuantity,
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return docrepo.AppendTx(tx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "offering",
		AggregateID:   offering.ID,
		EventType:     eventType,
		Payload:       payload,
	}, now)
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, docstore.ErrTxConflict) {
		if s.metrics != nil {
			s.metrics.RecordTxConflict()
		}
		return domain.ErrUnavailable
	}
	return err
}
