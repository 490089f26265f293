package domain

import "time"

// OrderStatus описывает жизненный цикл заказа. Из pending есть ровно два
// перехода: collected и cancelled, оба терминальные.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, единица зарезервирована, выдача не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCollected — заказ выдан по QR-токену.
	OrderStatusCollected OrderStatus = "collected"
	// OrderStatusCancelled — заказ отменён, остаток возвращён предложению.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order — одно резервирование против предложения. Заголовок, владелец и
// сбор денормализуются при создании, чтобы история заказов переживала
// изменение или удаление предложения. QRToken выдаётся ровно один раз.
type Order struct {
	ID                 string      `json:"id"`
	UID                string      `json:"uid"`
	OfferingID         string      `json:"offeringId"`
	OfferingTitle      string      `json:"offeringTitle"`
	OwnerUID           string      `json:"ownerUid"`
	Status             OrderStatus `json:"status"`
	FeeCents           int64       `json:"feeCents"`
	FeeRefundEligible  bool        `json:"feeRefundEligible"`
	SubscriptionWaived bool        `json:"subscriptionWaived"`
	QRToken            string      `json:"qrToken"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
	CancelledAt        *time.Time  `json:"cancelledAt,omitempty"`
	CollectedAt        *time.Time  `json:"collectedAt,omitempty"`
}

// Terminal сообщает, достиг ли заказ конечного состояния.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusCollected || o.Status == OrderStatusCancelled
}

// Cancel переводит заказ pending → cancelled. Повторная отмена и отмена
// выданного заказа возвращают ErrOrderTerminal — остаток предложения
// восстанавливается не более одного раза.
func (o *Order) Cancel(now time.Time) error {
	if o.Terminal() {
		return ErrOrderTerminal
	}
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Collect переводит заказ pending → collected. Уже выданный заказ даёт
// ErrAlreadyCollected (доброкачественный исход для UI), отменённый —
// ErrOrderTerminal. CollectedAt никогда не перезаписывается.
func (o *Order) Collect(now time.Time) error {
	switch o.Status {
	case OrderStatusCollected:
		return ErrAlreadyCollected
	case OrderStatusCancelled:
		return ErrOrderTerminal
	}
	o.Status = OrderStatusCollected
	o.CollectedAt = &now
	o.UpdatedAt = now
	return nil
}
