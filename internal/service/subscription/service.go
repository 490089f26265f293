// Package subscription управляет состоянием подписки на документе
// пользователя.
package subscription

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

const renewalPeriod = 30 * 24 * time.Hour

// Action — допустимые операции над подпиской.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
)

// Service — сервис подписки.
type Service struct {
	store           docstore.Store
	logger          *log.Entry
	metrics         *metrics.EngineMetrics
	monthlyFeeCents int64
	now             func() time.Time
}

// NewService создаёт сервис. monthlyFeeCents берётся из конфигурации.
func NewService(store docstore.Store, em *metrics.EngineMetrics, monthlyFeeCents int64, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "subscription")
	}
	return &Service{
		store:           store,
		logger:          logger,
		metrics:         em,
		monthlyFeeCents: monthlyFeeCents,
		now:             time.Now,
	}
}

// Update меняет подписку пользователя. activate включает подписку,
// назначает renewsAt на 30 дней вперёд и один раз фиксирует activatedAt;
// deactivate только сбрасывает active, оставляя renewsAt и waived как есть.
func (s *Service) Update(ctx context.Context, uid string, action Action, waived *bool) (domain.Subscription, error) {
	if action != ActionActivate && action != ActionDeactivate {
		return domain.Subscription{}, domain.ValidationError{Field: "action", Reason: "action must be activate or deactivate"}
	}

	var result domain.Subscription
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionUsers, uid)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var user domain.User
		if err := doc.Decode(&user); err != nil {
			return fmt.Errorf("decode user %s: %w", uid, err)
		}

		now := s.now().UTC()
		switch action {
		case ActionActivate:
			user.Subscription.Active = true
			if waived != nil {
				user.Subscription.Waived = *waived
			} else {
				user.Subscription.Waived = true
			}
			user.Subscription.MonthlyFeeCents = s.monthlyFeeCents
			renews := now.Add(renewalPeriod)
			user.Subscription.RenewsAt = &renews
			if user.Subscription.ActivatedAt == nil {
				user.Subscription.ActivatedAt = &now
			}
		case ActionDeactivate:
			user.Subscription.Active = false
		}
		user.UpdatedAt = now

		if err := tx.Update(domain.CollectionUsers, uid, user); err != nil {
			return err
		}
		result = user.Subscription

		payload, err := json.Marshal(map[string]any{
			"uid":    uid,
			"action": string(action),
			"active": user.Subscription.Active,
		})
		if err != nil {
			return fmt.Errorf("marshal subscription payload: %w", err)
		}
		return docrepo.AppendTx(tx, domain.OutboxMessage{
			ID:            uuid.NewString(),
			AggregateType: "user",
			AggregateID:   uid,
			EventType:     "user.subscription_updated",
			Payload:       payload,
		}, now)
	})
	if err != nil {
		if errors.Is(err, docstore.ErrTxConflict) {
			if s.metrics != nil {
				s.metrics.RecordTxConflict()
			}
			return domain.Subscription{}, domain.ErrUnavailable
		}
		return domain.Subscription{}, err
	}

	s.logger.WithFields(log.Fields{"uid": uid, "action": action}).Info("subscription updated")
	return result, nil
}
