// Package orders реализует машину состояний заказа. Создание и отмена
// выполняются в одной транзакции с изменением остатка предложения, поэтому
// oversell и двойное восстановление остатка невозможны по построению.
package orders

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

const listLimit = 50

// Service — сервис заказов.
type Service struct {
	store   docstore.Store
	logger  *log.Entry
	metrics *metrics.EngineMetrics
	now     func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(store docstore.Store, em *metrics.EngineMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{store: store, logger: logger, metrics: em, now: time.Now}
}

// Create резервирует одну единицу предложения и создаёт pending-заказ.
// Снимок заголовка, владельца и сбора денормализуется в заказ, QR-токен
// выдаётся один раз и больше никогда не меняется.
func (s *Service) Create(ctx context.Context, uid, offeringID string) (domain.Order, error) {
	if uid == "" {
		return domain.Order{}, domain.ValidationError{Field: "uid", Reason: "uid is required"}
	}
	if offeringID == "" {
		return domain.Order{}, domain.ValidationError{Field: "offeringId", Reason: "offeringId is required"}
	}

	var created domain.Order
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		userDoc, err := tx.Get(domain.CollectionUsers, uid)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var user domain.User
		if err := userDoc.Decode(&user); err != nil {
			return fmt.Errorf("decode user %s: %w", uid, err)
		}

		offeringDoc, err := tx.Get(domain.CollectionOfferings, offeringID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrOfferingNotFound
		}
		if err != nil {
			return err
		}
		var offering domain.Offering
		if err := offeringDoc.Decode(&offering); err != nil {
			return fmt.Errorf("decode offering %s: %w", offeringID, err)
		}

		if err := offering.Reserve(); err != nil {
			return err
		}

		now := s.now().UTC()
		offering.UpdatedAt = now
		if err := tx.Update(domain.CollectionOfferings, offeringID, offering); err != nil {
			return err
		}

		order := domain.Order{
			ID:                 uuid.NewString(),
			UID:                uid,
			OfferingID:         offeringID,
			OfferingTitle:      offering.Title,
			OwnerUID:           offering.OwnerUID,
			Status:             domain.OrderStatusPending,
			FeeCents:           offering.FeeCents,
			FeeRefundEligible:  offering.LaunchFeeRefund,
			SubscriptionWaived: user.Subscription.Waived,
			QRToken:            uuid.NewString(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(domain.CollectionOrders, order.ID, order); err != nil {
			return err
		}
		created = order

		if err := s.enqueueOrderEvent(tx, order, "order.created", now); err != nil {
			return err
		}
		return s.enqueueOfferingEvent(tx, offering, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSoldOut) && s.metrics != nil {
			s.metrics.RecordSoldOutReject()
		}
		return domain.Order{}, s.mapErr(err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.logger.WithFields(log.Fields{
		"order_id":    created.ID,
		"uid":         uid,
		"offering_id": offeringID,
	}).Info("order created")
	return created, nil
}

// Cancel переводит заказ в cancelled и возвращает единицу остатка.
// Повторная отмена возвращает ErrOrderTerminal и остаток не трогает.
func (s *Service) Cancel(ctx context.Context, orderID, uid string) (domain.Order, error) {
	var cancelled domain.Order
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		orderDoc, err := tx.Get(domain.CollectionOrders, orderID)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		var order domain.Order
		if err := orderDoc.Decode(&order); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if order.UID != uid {
			return domain.ErrForbidden
		}

		now := s.now().UTC()
		if err := order.Cancel(now); err != nil {
			return err
		}
		if err := tx.Update(domain.CollectionOrders, orderID, order); err != nil {
			return err
		}

		// Предложение могло быть удалено владельцем; отмена заказа от
		// этого не ломается.
		offeringDoc, err := tx.Get(domain.CollectionOfferings, order.OfferingID)
		if err == nil {
			var offering domain.Offering
			if err := offeringDoc.Decode(&offering); err != nil {
				return fmt.Errorf("decode offering %s: %w", order.OfferingID, err)
			}
			offering.Release()
			offering.UpdatedAt = now
			if err := tx.Update(domain.CollectionOfferings, order.OfferingID, offering); err != nil {
				return err
			}
			if err := s.enqueueOfferingEvent(tx, offering, now); err != nil {
				return err
			}
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		cancelled = order
		return s.enqueueOrderEvent(tx, order, "order.cancelled", now)
	})
	if err != nil {
		return domain.Order{}, s.mapErr(err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	s.logger.WithFields(log.Fields{"order_id": orderID, "uid": uid}).Info("order cancelled")
	return cancelled, nil
}

// ListForUser возвращает последние заказы пользователя, не более 50,
// новые раньше старых.
func (s *Service) ListForUser(ctx context.Context, uid string) ([]domain.Order, error) {
	return s.list(ctx, docstore.Filter{Field: "uid", Value: uid}, listLimit)
}

// ListForOwner возвращает последние заказы против предложений владельца.
func (s *Service) ListForOwner(ctx context.Context, ownerUID string, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	return s.list(ctx, docstore.Filter{Field: "ownerUid", Value: ownerUID}, limit)
}

// Get возвращает заказ по id с проверкой принадлежности.
func (s *Service) Get(ctx context.Context, orderID, uid string) (domain.Order, error) {
	doc, err := s.store.Get(ctx, domain.CollectionOrders, orderID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	var order domain.Order
	if err := doc.Decode(&order); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	if order.UID != uid && order.OwnerUID != uid {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

func (s *Service) list(ctx context.Context, filter docstore.Filter, limit int) ([]domain.Order, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOrders,
		Filters:    []docstore.Filter{filter},
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		var order domain.Order
		if err := doc.Decode(&order); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", doc.ID, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Service) enqueueOrderEvent(tx docstore.Tx, order domain.Order, eventType string, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"orderId":    order.ID,
		"uid":        order.UID,
		"offeringId": order.OfferingID,
		"status":     string(order.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return docrepo.AppendTx(tx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, now)
}

func (s *Service) enqueueOfferingEvent(tx docstore.Tx, offering domain.Offering, now time.Time) error {
	eventType := "offering.updated"
	if offering.Status == domain.OfferingStatusSoldOut {
		eventType = "offering.sold_out"
	}
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
