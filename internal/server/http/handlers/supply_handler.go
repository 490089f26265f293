package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/server/http/dto"
	"github.com/prasadamconnect/engine/internal/server/http/middleware"
	"github.com/prasadamconnect/engine/internal/service/supply"
)

const ownerOrdersLimit = 200

// SupplyHandler обрабатывает витрину и операции владельца поставок.
type SupplyHandler struct {
	supply    SupplyService
	orders    OrderService
	qr        QRService
	analytics AnalyticsService
}

// NewSupplyHandler создаёт SupplyHandler.
func NewSupplyHandler(supplySvc SupplyService, orders OrderService, qr QRService, analytics AnalyticsService) *SupplyHandler {
	return &SupplyHandler{supply: supplySvc, orders: orders, qr: qr, analytics: analytics}
}

// ListOfferings обрабатывает GET /api/offerings — публичная витрина.
func (h *SupplyHandler) ListOfferings(c *gin.Context) {
	offerings, err := h.supply.ListOfferings(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offerings)
}

// ListAnnouncements обрабатывает GET /api/announcements — публичный список
// анонсов без приватных заметок.
func (h *SupplyHandler) ListAnnouncements(c *gin.Context) {
	anns, err := h.supply.ListAnnouncements(c.Request.Context(), "", true)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, anns)
}

// OwnerOfferings обрабатывает GET /api/supply/offerings.
func (h *SupplyHandler) OwnerOfferings(c *gin.Context) {
	offerings, err := h.supply.ListOwnerOfferings(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offerings)
}

// PublishOffering обрабатывает POST /api/supply/offerings/publish.
func (h *SupplyHandler) PublishOffering(c *gin.Context) {
	var req dto.PublishOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	offering, err := h.supply.PublishOffering(c.Request.Context(), middleware.CallerUID(c),
		req.AnnouncementID, req.Quantity, req.FeeCents, req.LaunchFeeRefund)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, offering)
}

// UpdateOffering обрабатывает PATCH /api/supply/offerings/:id.
func (h *SupplyHandler) UpdateOffering(c *gin.Context) {
	var req dto.UpdateOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	update := supply.OfferingUpdate{
		Title:             req.Title,
		Description:       req.Description,
		AvailableQuantity: req.AvailableQuantity,
		FeeCents:          req.FeeCents,
	}
	if req.Status != nil {
		status := domain.OfferingStatus(*req.Status)
		update.Status = &status
	}

	offering, err := h.supply.UpdateOffering(c.Request.Context(), middleware.CallerUID(c), c.Param("id"), update)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, offering)
}

// DeleteOffering обрабатывает DELETE /api/supply/offerings/:id.
func (h *SupplyHandler) DeleteOffering(c *gin.Context) {
	if err := h.supply.DeleteOffering(c.Request.Context(), middleware.CallerUID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OwnerOrders обрабатывает GET /api/supply/orders — заказы против
// предложений владельца.
func (h *SupplyHandler) OwnerOrders(c *gin.Context) {
	orders, err := h.orders.ListForOwner(c.Request.Context(), middleware.CallerUID(c), ownerOrdersLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Analytics обрабатывает GET /api/supply/analytics.
func (h *SupplyHandler) Analytics(c *gin.Context) {
	metrics, err := h.analytics.SupplyAnalytics(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// CreateBatch обрабатывает POST /api/supply/batches.
func (h *SupplyHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	batch, err := h.supply.CreateBatch(c.Request.Context(), middleware.CallerUID(c), supply.BatchInput{
		Title:        req.Title,
		Quantity:     req.Quantity,
		ExpirationAt: req.ExpirationAt,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, batch)
}

// ListBatches обрабатывает GET /api/supply/batches.
func (h *SupplyHandler) ListBatches(c *gin.Context) {
	batches, err := h.supply.ListBatches(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

// CreateAnnouncement обрабатывает POST /api/supply/announcements.
func (h *SupplyHandler) CreateAnnouncement(c *gin.Context) {
	var req dto.CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	ann, err := h.supply.CreateAnnouncement(c.Request.Context(), middleware.CallerUID(c), supply.AnnouncementInput{
		Title:               req.Title,
		Description:         req.Description,
		ScheduledAt:         req.ScheduledAt,
		Notes:               req.Notes,
		ShowNotesToStudents: req.ShowNotesToStudents,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ann)
}

// OwnerAnnouncements обрабатывает GET /api/supply/announcements.
func (h *SupplyHandler) OwnerAnnouncements(c *gin.Context) {
	anns, err := h.supply.ListAnnouncements(c.Request.Context(), middleware.CallerUID(c), false)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, anns)
}

// DeleteAnnouncement обрабатывает DELETE /api/supply/announcements/:id.
func (h *SupplyHandler) DeleteAnnouncement(c *gin.Context) {
	if err := h.supply.DeleteAnnouncement(c.Request.Context(), middleware.CallerUID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateQRCode обрабатывает POST /api/qrcodes.
func (h *SupplyHandler) CreateQRCode(c *gin.Context) {
	var req dto.CreateQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	code, err := h.qr.CreateCode(c.Request.Context(), middleware.CallerUID(c), req.Title, req.Purpose, req.ExpiresAt)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, code)
}

// ListQRCodes обрабатывает GET /api/qrcodes.
func (h *SupplyHandler) ListQRCodes(c *gin.Context) {
	codes, err := h.qr.ListCodes(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, codes)
}

// DeleteQRCode обрабатывает DELETE /api/qrcodes/:token.
func (h *SupplyHandler) DeleteQRCode(c *gin.Context) {
	if err := h.qr.DeleteCode(c.Request.Context(), middleware.CallerUID(c), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
