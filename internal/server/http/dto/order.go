package dto

// CreateOrderRequest — тело POST /api/orders.
type CreateOrderRequest struct {
	OfferingID string `json:"offeringId" binding:"required"`
}

// ValidateOrderRequest — тело POST /api/orders/validate. Владелец
// сканирует QR-токен заказа при выдаче.
type ValidateOrderRequest struct {
	QRToken string `json:"qrToken" binding:"required"`
}
