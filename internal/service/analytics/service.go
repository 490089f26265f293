// Package analytics собирает агрегаты по заказам и предложениям владельца.
// Все чтения слабо-консистентные: цифры могут отставать от последних
// транзакций, что приемлемо для витрины.
package analytics

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
)

const (
	ordersCap    = 200
	offeringsCap = 100
)

// Service — агрегатор аналитики поставок.
type Service struct {
	store  docstore.Store
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт агрегатор.
func NewService(store docstore.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "analytics")
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// SupplyAnalytics возвращает снимок метрик владельца: счётчики заказов по
// статусам, сумму сборов по неотменённым заказам, уникальных студентов и
// состояние витрины предложений.
func (s *Service) SupplyAnalytics(ctx context.Context, ownerUID string) (domain.SupplyMetrics, error) {
	orderDocs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOrders,
		Filters:    []docstore.Filter{{Field: "ownerUid", Value: ownerUID}},
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      ordersCap,
	})
	if err != nil {
		return domain.SupplyMetrics{}, fmt.Errorf("query owner orders: %w", err)
	}

	var metrics domain.SupplyMetrics
	students := make(map[string]struct{})
	for _, doc := range orderDocs {
		var order domain.Order
		if err := doc.Decode(&order); err != nil {
			return domain.SupplyMetrics{}, fmt.Errorf("decode order %s: %w", doc.ID, err)
		}

		metrics.TotalOrders++
		students[order.UID] = struct{}{}

		switch order.Status {
		case domain.OrderStatusPending:
			metrics.PendingOrders++
		case domain.OrderStatusCollected:
			metrics.CollectedOrders++
			// Возврату подлежит стартовый сбор выданного заказа.
			if order.FeeRefundEligible {
				metrics.RefundedOrders++
			}
		}
		if order.Status != domain.OrderStatusCancelled {
			metrics.TotalFeesCents += order.FeeCents
		}
	}
	metrics.UniqueStudents = len(students)

	offeringDocs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionOfferings,
		Filters:    []docstore.Filter{{Field: "ownerUid", Value: ownerUID}},
		Limit:      offeringsCap,
	})
	if err != nil {
		return domain.SupplyMetrics{}, fmt.Errorf("query owner offerings: %w", err)
	}

	now := s.now().UTC()
	for _, doc := range offeringDocs {
		var offering domain.Offering
		if err := doc.Decode(&offering); err != nil {
			return domain.SupplyMetrics{}, fmt.Errorf("decode offering %s: %w", doc.ID, err)
		}
		if offering.Orderable() {
			metrics.ActiveOfferings++
		}
		if offering.AvailableAt.After(now) {
			metrics.UpcomingOfferings++
		}
	}

	return metrics, nil
}
