package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/server/http/dto"
	"github.com/prasadamconnect/engine/internal/server/http/middleware"
)

// OrderHandler обрабатывает заказы и валидацию QR при выдаче.
type OrderHandler struct {
	orders OrderService
	qr     QRService
}

// NewOrderHandler создаёт OrderHandler.
func NewOrderHandler(orders OrderService, qr QRService) *OrderHandler {
	return &OrderHandler{orders: orders, qr: qr}
}

// Create обрабатывает POST /api/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.Create(c.Request.Context(), middleware.CallerUID(c), req.OfferingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// List обрабатывает GET /api/orders — заказы вызывающего, новые раньше.
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Get обрабатывает GET /api/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Cancel обрабатывает POST /api/orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Validate обрабатывает POST /api/orders/validate — владелец сканирует
// QR-токен заказа при выдаче.
func (h *OrderHandler) Validate(c *gin.Context) {
	var req dto.ValidateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.qr.ValidateOrder(c.Request.Context(), middleware.CallerUID(c), req.QRToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
