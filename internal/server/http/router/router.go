// Package router собирает gin-маршруты движка.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/health"
	"github.com/prasadamconnect/engine/internal/metrics"
	"github.com/prasadamconnect/engine/internal/server/http/handlers"
	"github.com/prasadamconnect/engine/internal/server/http/middleware"
)

// Deps — зависимости маршрутизатора.
type Deps struct {
	Users         handlers.UserService
	Subscriptions handlers.SubscriptionService
	Orders        handlers.OrderService
	QR            handlers.QRService
	Supply        handlers.SupplyService
	Analytics     handlers.AnalyticsService

	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.EngineMetrics
	Health      *health.Handler
	Logger      *log.Entry
}

// Setup настраивает gin-маршрутизатор со всеми обработчиками и middleware.
func Setup(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(deps.Logger))
	engine.Use(middleware.HTTPMetrics(deps.Metrics))

	userHandler := handlers.NewUserHandler(deps.Users, deps.Subscriptions)
	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.QR)
	supplyHandler := handlers.NewSupplyHandler(deps.Supply, deps.Orders, deps.QR, deps.Analytics)

	if deps.Health != nil {
		engine.GET("/health", gin.WrapH(deps.Health))
	} else {
		engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	}

	api := engine.Group("/api")
	idem := middleware.Idempotency(deps.Idempotency, deps.Logger)

	// Открытые маршруты: регистрация и витрина.
	api.POST("/create-user-with-login", idem, userHandler.Register)
	api.GET("/check-user", userHandler.CheckUser)
	api.GET("/offerings", supplyHandler.ListOfferings)
	api.GET("/announcements", supplyHandler.ListAnnouncements)

	auth := api.Group("")
	auth.Use(middleware.IdentityRequired())

	auth.GET("/user/:uid", userHandler.GetUser)
	auth.PATCH("/user/:uid", userHandler.UpdateProfile)
	auth.POST("/login-history", userHandler.RecordLogin)
	auth.GET("/login-history/:uid", userHandler.LoginHistory)
	auth.POST("/subscription", userHandler.UpdateSubscription)
	auth.POST("/unregister", userHandler.Unregister)

	auth.POST("/orders", idem, orderHandler.Create)
	auth.GET("/orders", orderHandler.List)
	auth.GET("/orders/:id", orderHandler.Get)
	auth.POST("/orders/:id/cancel", idem, orderHandler.Cancel)
	auth.POST("/orders/validate", orderHandler.Validate)

	auth.POST("/qrcodes", supplyHandler.CreateQRCode)
	auth.GET("/qrcodes", supplyHandler.ListQRCodes)
	auth.DELETE("/qrcodes/:token", supplyHandler.DeleteQRCode)

	owner := auth.Group("/supply")
	owner.GET("/offerings", supplyHandler.OwnerOfferings)
	owner.POST("/offerings/publish", idem, supplyHandler.PublishOffering)
	owner.PATCH("/offerings/:id", supplyHandler.UpdateOffering)
	owner.DELETE("/offerings/:id", supplyHandler.DeleteOffering)
	owner.GET("/orders", supplyHandler.OwnerOrders)
	owner.GET("/analytics", supplyHandler.Analytics)
	owner.POST("/batches", supplyHandler.CreateBatch)
	owner.GET("/batches", supplyHandler.ListBatches)
	owner.POST("/announcements", supplyHandler.CreateAnnouncement)
	owner.GET("/announcements", supplyHandler.OwnerAnnouncements)
	owner.DELETE("/announcements/:id", supplyHandler.DeleteAnnouncement)

	return engine
}
