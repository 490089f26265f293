// Package qr реализует выдачу заказов по QR-токену и многоразовые
// QR-коды владельца. Валидация заказа идёт в два шага: точечный поиск по
// токену, затем транзакция над самим заказом, поэтому гонка двух сканов
// разрешается в пользу ровно одного collected.
package qr

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

// Service — сервис QR-валидции и кодов.
type Service struct {
	store   docstore.Store
	logger  *log.Entry
	metrics *metrics.EngineMetrics
	now     func() time.Time
}

// NewService создаёт сервис.
func NewService(store docstore.Store, em *metrics.EngineMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "qr")
	}
	return &Service{store: store, logger: logger, metrics: em, now: time.Now}
}

// ValidateOrder находит заказ по QR-токену и отмечает его выданным.
// Только владелец предложения вправе выдавать; уже выданный заказ даёт
// ErrAlreadyCollected и не перештамповывает collectedAt.
func (s *Service) ValidateOrder(ctx context.Context, ownerUID, qrToken string) (domain.Order, error) {
	if qrToken == "" {
		return domain.Order{}, domain.ValidationError{Field: "qrToken", Reason: "qrToken is required"}
	}

	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOrders,
		Filters:    []docstore.Filter{{Field: "qrToken", Value: qrToken}},
		Limit:      1,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order by qr token: %w", err)
	}
	if len(docs) == 0 {
		s.recordValidation("not_found")
		return domain.Order{}, domain.ErrQRCodeNotFound
	}
	orderID := docs[0].ID

	var collected domain.Order
	err = s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionOrders, orderID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		var order domain.Order
		if err := doc.Decode(&order); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if order.OwnerUID != ownerUID {
			return domain.ErrForbidden
		}

		now := s.now().UTC()
		if err := order.Collect(now); err != nil {
			return err
		}
		if err := tx.Update(domain.CollectionOrders, orderID, order); err != nil {
			return err
		}
		collected = order

		payload, err := json.Marshal(map[string]any{
			"orderId":     order.ID,
			"uid":         order.UID,
			"offeringId":  order.OfferingID,
			"status":      string(order.Status),
			"collectedAt": now,
		})
		if err != nil {
			return fmt.Errorf("marshal order.collected payload: %w", err)
		}
		return docrepo.AppendTx(tx, domain.OutboxMessage{
			ID:            uuid.NewString(),
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.collected",
			Payload:       payload,
		}, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyCollected):
			s.recordValidation("already_collected")
		case errors.Is(err, domain.ErrOrderTerminal):
			s.recordValidation("cancelled")
		case errors.Is(err, domain.ErrForbidden):
			s.recordValidation("forbidden")
		}
		return domain.Order{}, s.mapErr(err)
	}

	s.recordValidation("collected")
	if s.metrics != nil {
		s.metrics.RecordOrderCollected()
	}
	s.logger.WithFields(log.Fields{"order_id": collected.ID, "owner_uid": ownerUID}).Info("order collected")
	return collected, nil
}

// CreateCode создаёт многоразовый QR-код владельца, не связанный с
// жизненным циклом заказов.
func (s *Service) CreateCode(ctx context.Context, ownerUID, title, purpose string, expiresAt *time.Time) (domain.QRCode, error) {
	if title == "" {
		return domain.QRCode{}, domain.ValidationError{Field: "title", Reason: "title is required"}
	}

	now := s.now().UTC()
	code := domain.QRCode{
		OwnerUID:  ownerUID,
		QRToken:   uuid.NewString(),
		Title:     title,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionQRCodes, code.QRToken, code)
	})
	if err != nil {
		return domain.QRCode{}, s.mapErr(err)
	}
	return code, nil
}

// ListCodes возвращает QR-коды владельца, новые раньше старых.
func (s *Service) ListCodes(ctx context.Context, ownerUID string) ([]domain.QRCode, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionQRCodes,
		Filters:    []docstore.Filter{{Field: "ownerUid", Value: ownerUID}},
		OrderBy:    "createdAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("query qr codes: %w", err)
	}

	codes := make([]domain.QRCode, 0, len(docs))
	for _, doc := range docs {
		var code domain.QRCode
		if err := doc.Decode(&code); err != nil {
			return nil, fmt.Errorf("decode qr code %s: %w", doc.ID, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// DeleteCode удаляет QR-код владельца по токену.
func (s *Service) DeleteCode(ctx context.Context, ownerUID, qrToken string) error {
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionQRCodes, qrToken)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrQRCodeNotFound
		}
		if err != nil {
			return err
		}
		var code domain.QRCode
		if err := doc.Decode(&code); err != nil {
			return fmt.Errorf("decode qr code %s: %w", qrToken, err)
		}
		if code.OwnerUID != ownerUID {
			return domain.ErrForbidden
		}
		return tx.Delete(domain.CollectionQRCodes, qrToken)
	})
	return s.mapErr(err)
}

func (s *Service) recordValidation(result string) {
	if s.metrics != nil {
		s.metrics.RecordQRValidation(result)
	}
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
