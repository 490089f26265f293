// Package handlers содержит gin-обработчики HTTP API движка.
package handlers

import (
	"context"
	"time"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/service/registrar"
	"github.com/prasadamconnect/engine/internal/service/subscription"
	"github.com/prasadamconnect/engine/internal/service/supply"
)

// UserService — операции регистрации и профиля, нужные обработчикам.
type UserService interface {
	CreateUserWithLogin(ctx context.Context, input registrar.RegistrationInput, client registrar.ClientContext) (domain.User, error)
	CheckUserExists(ctx context.Context, phone string) (bool, error)
	GetUser(ctx context.Context, uid string) (domain.User, error)
	UpdateProfile(ctx context.Context, uid string, update registrar.ProfileUpdate) (domain.User, error)
	RecordLogin(ctx context.Context, uid, phone string, client registrar.ClientContext) (domain.LoginRecord, error)
	ListLoginHistory(ctx context.Context, uid string, limit int) ([]domain.LoginRecord, error)
	Unregister(ctx context.Context, uid string) error
}

// SubscriptionService — операции над подпиской.
type SubscriptionService interface {
	Update(ctx context.Context, uid string, action subscription.Action, waived *bool) (domain.Subscription, error)
}

// OrderService — операции заказов.
type OrderService interface {
	Create(ctx context.Context, uid, offeringID string) (domain.Order, error)
	Cancel(ctx context.Context, orderID, uid string) (domain.Order, error)
	Get(ctx context.Context, orderID, uid string) (domain.Order, error)
	ListForUser(ctx context.Context, uid string) ([]domain.Order, error)
	ListForOwner(ctx context.Context, ownerUID string, limit int) ([]domain.Order, error)
}

// QRService — валидация заказов по QR-токену и многоразовые коды владельца.
type QRService interface {
	ValidateOrder(ctx context.Context, ownerUID, qrToken string) (domain.Order, error)
	CreateCode(ctx context.Context, ownerUID, title, purpose string, expiresAt *time.Time) (domain.QRCode, error)
	ListCodes(ctx context.Context, ownerUID string) ([]domain.QRCode, error)
	DeleteCode(ctx context.Context, ownerUID, qrToken string) error
}

// SupplyService — витрина, публикация и сопутствующие сущности владельца.
type SupplyService interface {
	ListOfferings(ctx context.Context, status string) ([]domain.Offering, error)
	ListOwnerOfferings(ctx context.Context, ownerUID string) ([]domain.Offering, error)
	PublishOffering(ctx context.Context, ownerUID, announcementID string, quantity int, feeCents int64, launchFeeRefund bool) (domain.Offering, error)
	UpdateOffering(ctx context.Context, ownerUID, offeringID string, update supply.OfferingUpdate) (domain.Offering, error)
	DeleteOffering(ctx context.Context, ownerUID, offeringID string) error
	CreateBatch(ctx context.Context, ownerUID string, input supply.BatchInput) (domain.SupplyBatch, error)
	ListBatches(ctx context.Context, ownerUID string) ([]domain.SupplyBatch, error)
	CreateAnnouncement(ctx context.Context, ownerUID string, input supply.AnnouncementInput) (domain.Announcement, error)
	ListAnnouncements(ctx context.Context, ownerUID string, forStudents bool) ([]domain.Announcement, error)
	DeleteAnnouncement(ctx context.Context, ownerUID, announcementID string) error
}

// AnalyticsService — агрегаты по поставкам владельца.
type AnalyticsService interface {
	SupplyAnalytics(ctx context.Context, ownerUID string) (domain.SupplyMetrics, error)
}
