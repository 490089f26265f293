package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/messaging/kafka"
	"github.com/prasadamconnect/engine/internal/metrics"
	"github.com/prasadamconnect/engine/internal/service/analytics"
	"github.com/prasadamconnect/engine/internal/service/orders"
	"github.com/prasadamconnect/engine/internal/service/qr"
	"github.com/prasadamconnect/engine/internal/service/registrar"
	"github.com/prasadamconnect/engine/internal/service/subscription"
	"github.com/prasadamconnect/engine/internal/service/supply"
	"github.com/prasadamconnect/engine/internal/storage/docrepo"
	"github.com/prasadamconnect/engine/internal/storage/memory"
	"github.com/prasadamconnect/engine/internal/storage/postgres"
)

// Dependencies содержит собранные зависимости приложения.
type Dependencies struct {
	Store   docstore.Store
	Metrics *metrics.EngineMetrics

	Users         *registrar.Service
	Subscriptions *subscription.Service
	Orders        *orders.Service
	QR            *qr.Service
	Supply        *supply.Service
	Analytics     *analytics.Service

	OutboxRepo      *docrepo.OutboxRepository
	IdempotencyRepo *docrepo.IdempotencyRepository

	KafkaProducer *kafka.Producer
	Publisher     domain.OutboxPublisher
	DLQPublisher  domain.OutboxPublisher

	pgStore *postgres.Store
	Logger  *log.Entry
}

// NewDependencies собирает зависимости по конфигурации: postgres-хранилище
// при заданном DSN (с применением миграций), иначе in-memory; Kafka при
// заданных brokers.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}
	deps.Metrics = metrics.NewEngineMetrics()

	if cfg.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		deps.pgStore = pg
		deps.Store = postgres.NewDocStore(pg, logger.WithField("component", "postgres-docstore"))
		logger.Info("postgres document store initialized")
	} else {
		deps.Store = memory.NewStore()
		logger.Warn("PRASADAM_POSTGRES_DSN is empty, using in-memory document store")
	}

	deps.OutboxRepo = docrepo.NewOutboxRepository(deps.Store)
	deps.IdempotencyRepo = docrepo.NewIdempotencyRepository(deps.Store)

	deps.Users = registrar.NewService(deps.Store, deps.Metrics, cfg.MonthlyFeeCents, logger.WithField("component", "registrar"))
	deps.Subscriptions = subscription.NewService(deps.Store, deps.Metrics, cfg.MonthlyFeeCents, logger.WithField("component", "subscription"))
	deps.Orders = orders.NewService(deps.Store, deps.Metrics, logger.WithField("component", "orders"))
	deps.QR = qr.NewService(deps.Store, deps.Metrics, logger.WithField("component", "qr"))
	deps.Supply = supply.NewService(deps.Store, deps.Metrics, logger.WithField("component", "supply"))
	deps.Analytics = analytics.NewService(deps.Store, logger.WithField("component", "analytics"))

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, change feed delivery disabled")
		} else {
			deps.KafkaProducer = producer
			deps.Publisher = kafka.NewOutboxPublisher(producer)
			deps.DLQPublisher = kafka.NewDLQPublisher(producer)
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	return deps, nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.KafkaProducer != nil {
		if err := d.KafkaProducer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			d.Logger.Info("kafka producer closed")
		}
	}
	if d.pgStore != nil {
		if err := d.pgStore.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
