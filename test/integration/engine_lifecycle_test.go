package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/service/analytics"
	"github.com/prasadamconnect/engine/internal/service/orders"
	"github.com/prasadamconnect/engine/internal/service/outbox"
	"github.com/prasadamconnect/engine/internal/service/qr"
	"github.com/prasadamconnect/engine/internal/service/registrar"
	"github.com/prasadamconnect/engine/internal/service/subscription"
	"github.com/prasadamconnect/engine/internal/service/supply"
	"github.com/prasadamconnect/engine/internal/storage/docrepo"
	"github.com/prasadamconnect/engine/internal/storage/memory"
)

const monthlyFeeCents = 100

// capturingPublisher собирает опубликованные события вместо брокера.
type capturingPublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
}

func (p *capturingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.published))
	for _, event := range p.published {
		types = append(types, event.EventType)
	}
	return types
}

// EngineLifecycleTestSuite тестирует полный жизненный цикл: регистрация,
// публикация предложения, заказы, выдача по QR, подписка и аналитика.
type EngineLifecycleTestSuite struct {
	suite.Suite
	store         docstore.Store
	registrar     *registrar.Service
	supply        *supply.Service
	orders        *orders.Service
	qr            *qr.Service
	subscriptions *subscription.Service
	analytics     *analytics.Service
	outboxRepo    *docrepo.OutboxRepository
	publisher     *capturingPublisher
	worker        *outbox.Worker
}

func (suite *EngineLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.store = memory.NewStore()
	suite.registrar = registrar.NewService(suite.store, nil, monthlyFeeCents, logger)
	suite.supply = supply.NewService(suite.store, nil, logger)
	suite.orders = orders.NewService(suite.store, nil, logger)
	suite.qr = qr.NewService(suite.store, nil, logger)
	suite.subscriptions = subscription.NewService(suite.store, nil, monthlyFeeCents, logger)
	suite.analytics = analytics.NewService(suite.store, logger)

	suite.outboxRepo = docrepo.NewOutboxRepository(suite.store)
	suite.publisher = &capturingPublisher{}
	suite.worker = outbox.NewWorker(suite.outboxRepo, suite.publisher,
		outbox.WithLogger(logger),
		outbox.WithBatchSize(50),
	)
}

func (suite *EngineLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	ctx := context.Background()

	ownerUID := suite.registerUser(ctx, "owner-1", "+79160000001", domain.RoleSupplyOwner)
	studentUID := suite.registerUser(ctx, "student-1", "+79160000002", domain.RoleStudent)

	// 1. Анонс и публикация предложения
	offering := suite.publishOffering(ctx, ownerUID, 2, 150)
	require.Equal(suite.T(), domain.OfferingStatusAvailable, offering.Status)
	require.Equal(suite.T(), 2, offering.AvailableQuantity)

	// 2. Студент размещает заказ
	order, err := suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)
	require.NotEmpty(suite.T(), order.QRToken)
	require.Equal(suite.T(), offering.Title, order.OfferingTitle)
	require.Equal(suite.T(), int64(150), order.FeeCents)

	// Остаток списан
	updated := suite.getOffering(ctx, offering.ID)
	require.Equal(suite.T(), 1, updated.AvailableQuantity)

	// 3. Владелец выдаёт заказ по QR-токену
	collected, err := suite.qr.ValidateOrder(ctx, ownerUID, order.QRToken)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCollected, collected.Status)
	require.NotNil(suite.T(), collected.CollectedAt)

	// 4. Повторная валидация не изменяет состояние
	_, err = suite.qr.ValidateOrder(ctx, ownerUID, order.QRToken)
	require.ErrorIs(suite.T(), err, domain.ErrAlreadyCollected)

	// 5. Выданный заказ нельзя отменить
	_, err = suite.orders.Cancel(ctx, order.ID, studentUID)
	require.ErrorIs(suite.T(), err, domain.ErrOrderTerminal)

	// Остаток не восстанавливается после выдачи
	final := suite.getOffering(ctx, offering.ID)
	require.Equal(suite.T(), 1, final.AvailableQuantity)
}

func (suite *EngineLifecycleTestSuite) TestSoldOutAndCancellationRestock() {
	ctx := context.Background()

	ownerUID := suite.registerUser(ctx, "owner-2", "+79160000011", domain.RoleSupplyOwner)
	first := suite.registerUser(ctx, "student-a", "+79160000012", domain.RoleStudent)
	second := suite.registerUser(ctx, "student-b", "+79160000013", domain.RoleStudent)

	offering := suite.publishOffering(ctx, ownerUID, 1, 100)

	// Единственная единица уходит первому студенту
	order, err := suite.orders.Create(ctx, first, offering.ID)
	require.NoError(suite.T(), err)

	soldOut := suite.getOffering(ctx, offering.ID)
	require.Equal(suite.T(), domain.OfferingStatusSoldOut, soldOut.Status)

	// Второй студент получает отказ
	_, err = suite.orders.Create(ctx, second, offering.ID)
	require.ErrorIs(suite.T(), err, domain.ErrSoldOut)

	// Отмена возвращает остаток и снова открывает предложение
	cancelled, err := suite.orders.Cancel(ctx, order.ID, first)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCancelled, cancelled.Status)
	require.NotNil(suite.T(), cancelled.CancelledAt)

	restocked := suite.getOffering(ctx, offering.ID)
	require.Equal(suite.T(), domain.OfferingStatusAvailable, restocked.Status)
	require.Equal(suite.T(), 1, restocked.AvailableQuantity)

	// Теперь второй студент может заказать
	_, err = suite.orders.Create(ctx, second, offering.ID)
	require.NoError(suite.T(), err)

	// Повторная отмена запрещена
	_, err = suite.orders.Cancel(ctx, order.ID, first)
	require.ErrorIs(suite.T(), err, domain.ErrOrderTerminal)
}

func (suite *EngineLifecycleTestSuite) TestQRValidationOwnership() {
	ctx := context.Background()

	ownerUID := suite.registerUser(ctx, "owner-3", "+79160000021", domain.RoleSupplyOwner)
	intruderUID := suite.registerUser(ctx, "owner-4", "+79160000022", domain.RoleSupplyOwner)
	studentUID := suite.registerUser(ctx, "student-c", "+79160000023", domain.RoleStudent)

	offering := suite.publishOffering(ctx, ownerUID, 1, 0)
	order, err := suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)

	// Чужой владелец не может выдать заказ
	_, err = suite.qr.ValidateOrder(ctx, intruderUID, order.QRToken)
	require.ErrorIs(suite.T(), err, domain.ErrForbidden)

	// Неизвестный токен
	_, err = suite.qr.ValidateOrder(ctx, ownerUID, "no-such-token")
	require.ErrorIs(suite.T(), err, domain.ErrQRCodeNotFound)

	// Заказ остался pending
	got, err := suite.orders.Get(ctx, order.ID, studentUID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPending, got.Status)
}

func (suite *EngineLifecycleTestSuite) TestSubscriptionAndAnalytics() {
	ctx := context.Background()

	ownerUID := suite.registerUser(ctx, "owner-5", "+79160000031", domain.RoleSupplyOwner)
	studentUID := suite.registerUser(ctx, "student-d", "+79160000032", domain.RoleStudent)

	// Активируем подписку с освобождением от взноса
	waived := true
	sub, err := suite.subscriptions.Update(ctx, studentUID, subscription.ActionActivate, &waived)
	require.NoError(suite.T(), err)
	require.True(suite.T(), sub.Active)
	require.True(suite.T(), sub.Waived)
	require.Equal(suite.T(), int64(monthlyFeeCents), sub.MonthlyFeeCents)
	require.NotNil(suite.T(), sub.RenewsAt)

	offering := suite.publishOffering(ctx, ownerUID, 3, 200)

	// Один собранный, один отменённый (с правом возврата), один pending
	collectedOrder, err := suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)
	require.True(suite.T(), collectedOrder.SubscriptionWaived)
	require.True(suite.T(), collectedOrder.FeeRefundEligible)

	_, err = suite.qr.ValidateOrder(ctx, ownerUID, collectedOrder.QRToken)
	require.NoError(suite.T(), err)

	cancelledOrder, err := suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)
	_, err = suite.orders.Cancel(ctx, cancelledOrder.ID, studentUID)
	require.NoError(suite.T(), err)

	_, err = suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)

	stats, err := suite.analytics.SupplyAnalytics(ctx, ownerUID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 3, stats.TotalOrders)
	require.Equal(suite.T(), 1, stats.PendingOrders)
	require.Equal(suite.T(), 1, stats.CollectedOrders)
	require.Equal(suite.T(), 1, stats.RefundedOrders)
	require.Equal(suite.T(), 1, stats.UniqueStudents)
	require.GreaterOrEqual(suite.T(), stats.UpcomingOfferings, 1)

	// Деактивация не трогает условия продления
	sub, err = suite.subscriptions.Update(ctx, studentUID, subscription.ActionDeactivate, nil)
	require.NoError(suite.T(), err)
	require.False(suite.T(), sub.Active)
}

func (suite *EngineLifecycleTestSuite) TestOutboxDrainsLifecycleEvents() {
	ctx := context.Background()

	ownerUID := suite.registerUser(ctx, "owner-6", "+79160000041", domain.RoleSupplyOwner)
	studentUID := suite.registerUser(ctx, "student-e", "+79160000042", domain.RoleStudent)

	offering := suite.publishOffering(ctx, ownerUID, 1, 50)

	order, err := suite.orders.Create(ctx, studentUID, offering.ID)
	require.NoError(suite.T(), err)
	_, err = suite.qr.ValidateOrder(ctx, ownerUID, order.QRToken)
	require.NoError(suite.T(), err)

	stats, err := suite.outboxRepo.Stats(ctx)
	require.NoError(suite.T(), err)
	require.Greater(suite.T(), stats.PendingCount, 0)

	suite.worker.ProcessOnce(ctx)

	stats, err = suite.outboxRepo.Stats(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, stats.PendingCount)

	types := suite.publisher.eventTypes()
	counts := map[string]int{}
	for _, eventType := range types {
		counts[eventType]++
	}
	require.Equal(suite.T(), 2, counts["user.registered"])
	require.Equal(suite.T(), 1, counts["offering.published"])
	require.Equal(suite.T(), 1, counts["order.created"])
	require.Equal(suite.T(), 1, counts["order.collected"])

	// События уходят в порядке создания
	require.Equal(suite.T(), "user.registered", types[0])
	require.Equal(suite.T(), "order.collected", types[len(types)-1])
}

func (suite *EngineLifecycleTestSuite) TestRegistrationMarkersSurviveUnregister() {
	ctx := context.Background()

	phone := "+79160000051"
	uid := suite.registerUser(ctx, "student-f", phone, domain.RoleStudent)

	// Повторная регистрация того же телефона отклоняется
	_, err := suite.registrar.CreateUserWithLogin(ctx, registrar.RegistrationInput{
		UID:   "student-f-dup",
		Name:  "Duplicate",
		Email: "dup-student-f@example.org",
		Phone: phone,
		Role:  domain.RoleStudent,
	}, registrar.ClientContext{})
	var conflict domain.ConflictError
	require.ErrorAs(suite.T(), err, &conflict)
	require.Equal(suite.T(), "phone", conflict.Field)

	require.NoError(suite.T(), suite.registrar.Unregister(ctx, uid))

	_, err = suite.registrar.GetUser(ctx, uid)
	require.ErrorIs(suite.T(), err, domain.ErrUserNotFound)

	// Маркеры уникальности намеренно переживают удаление аккаунта
	exists, err := suite.registrar.CheckUserExists(ctx, phone)
	require.NoError(suite.T(), err)
	require.True(suite.T(), exists)
}

// Вспомогательные методы

func (suite *EngineLifecycleTestSuite) registerUser(ctx context.Context, uid, phone string, role domain.UserRole) string {
	user, err := suite.registrar.CreateUserWithLogin(ctx, registrar.RegistrationInput{
		UID:   uid,
		Name:  "User " + uid,
		Email: fmt.Sprintf("%s@example.org", uid),
		Phone: phone,
		Role:  role,
	}, registrar.ClientContext{UserAgent: "integration-test", IPAddress: "127.0.0.1"})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), uid, user.UID)
	return user.UID
}

func (suite *EngineLifecycleTestSuite) publishOffering(ctx context.Context, ownerUID string, quantity int, feeCents int64) domain.Offering {
	announcement, err := suite.supply.CreateAnnouncement(ctx, ownerUID, supply.AnnouncementInput{
		Title:       "Sunday feast",
		Description: "Weekly distribution",
		ScheduledAt: time.Now().Add(48 * time.Hour),
	})
	require.NoError(suite.T(), err)

	offering, err := suite.supply.PublishOffering(ctx, ownerUID, announcement.ID, quantity, feeCents, true)
	require.NoError(suite.T(), err)
	return offering
}

func (suite *EngineLifecycleTestSuite) getOffering(ctx context.Context, id string) domain.Offering {
	doc, err := suite.store.Get(ctx, domain.CollectionOfferings, id)
	require.NoError(suite.T(), err)

	var offering domain.Offering
	require.NoError(suite.T(), doc.Decode(&offering))
	return offering
}

func TestEngineLifecycle(t *testing.T) {
	suite.Run(t, new(EngineLifecycleTestSuite))
}
