package domain

import "time"

// OfferingStatus описывает жизненный цикл опубликованного предложения.
type OfferingStatus string

const (
	// OfferingStatusAvailable — предложение открыто для резервирования.
	OfferingStatusAvailable OfferingStatus = "available"
	// OfferingStatusOpen — исторический синоним available, встречается в старых документах.
	OfferingStatusOpen OfferingStatus = "open"
	// OfferingStatusSoldOut — остаток исчерпан; восстанавливается отменой заказа.
	OfferingStatusSoldOut OfferingStatus = "sold-out"
	// OfferingStatusClosed — закрыто владельцем, резервирование запрещено.
	OfferingStatusClosed OfferingStatus = "closed"
)

// Offering — опубликованное, ограниченное по количеству предложение.
// AvailableQuantity никогда не опускается ниже нуля: единственный путь
// изменения — Reserve/Release внутри транзакции вместе с заказом.
type Offering struct {
	ID                   string         `json:"id"`
	OwnerUID             string         `json:"ownerUid"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Status               OfferingStatus `json:"status"`
	AvailableAt          time.Time      `json:"availableAt"`
	AvailableQuantity    int            `json:"availableQuantity"`
	FeeCents             int64          `json:"feeCents"`
	LaunchFeeRefund      bool           `json:"launchFeeRefund"`
	SourceAnnouncementID string         `json:"sourceAnnouncementId,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Orderable сообщает, допускает ли текущий статус резервирование.
func (o *Offering) Orderable() bool {
	return o.Status == OfferingStatusAvailable || o.Status == OfferingStatusOpen
}

// Reserve списывает одну единицу остатка. Возвращает ErrSoldOut, если
// остаток исчерпан или статус не допускает резервирование. При достижении
// нуля предложение переводится в sold-out.
func (o *Offering) Reserve() error {
	if !o.Orderable() {
		return ErrSoldOut
	}
	if o.AvailableQuantity <= 0 {
		return ErrSoldOut
	}
	o.AvailableQuantity--
	if o.AvailableQuantity == 0 {
		o.Status = OfferingStatusSoldOut
	}
	return nil
}

// Release возвращает одну единицу остатка после отмены заказа.
// Если предложение было sold-out, оно снова становится available.
func (o *Offering) Release() {
	o.AvailableQuantity++
	if o.Status == OfferingStatusSoldOut {
		o.Status = OfferingStatusAvailable
	}
}
