package dto

import "time"

// PublishOfferingRequest — тело POST /api/supply/offerings/publish.
type PublishOfferingRequest struct {
	AnnouncementID  string `json:"announcementId" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required"`
	FeeCents        int64  `json:"feeCents"`
	LaunchFeeRefund bool   `json:"launchFeeRefund"`
}

// UpdateOfferingRequest — тело PATCH /api/supply/offerings/:id.
type UpdateOfferingRequest struct {
	Title             *string `json:"title"`
	Description       *string `json:"description"`
	Status            *string `json:"status"`
	AvailableQuantity *int    `json:"availableQuantity"`
	FeeCents          *int64  `json:"feeCents"`
}

// CreateBatchRequest — тело POST /api/supply/batches.
type CreateBatchRequest struct {
	Title        string     `json:"title" binding:"required"`
	Quantity     int        `json:"quantity" binding:"required"`
	ExpirationAt *time.Time `json:"expirationAt"`
	Notes        string     `json:"notes"`
}

// CreateAnnouncementRequest — тело POST /api/supply/announcements.
type CreateAnnouncementRequest struct {
	Title               string    `json:"title" binding:"required"`
	Description         string    `json:"description"`
	ScheduledAt         time.Time `json:"scheduledAt" binding:"required"`
	Notes               string    `json:"notes"`
	ShowNotesToStudents bool      `json:"showNotesToStudents"`
}

// CreateQRCodeRequest — тело POST /api/qrcodes.
type CreateQRCodeRequest struct {
	Title     string     `json:"title" binding:"required"`
	Purpose   string     `json:"purpose"`
	ExpiresAt *time.Time `json:"expiresAt"`
}
