package kafka

import "time"

// EventType определяет тип события ленты изменений.
type EventType string

const (
	// События пользователей
	EventTypeUserRegistered   EventType = "user.registered"
	EventTypeUserUnregistered EventType = "user.unregistered"
	EventTypeProfileUpdated   EventType = "user.profile_updated"
	EventTypeSubscription     EventType = "user.subscription_updated"

	// События заказов
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderCollected EventType = "order.collected"

	// События предложений
	EventTypeOfferingPublished EventType = "offering.published"
	EventTypeOfferingUpdated   EventType = "offering.updated"
	EventTypeOfferingDeleted   EventType = "offering.deleted"
	EventTypeOfferingSoldOut   EventType = "offering.sold_out"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "prasadam.order.events"
	TopicOfferingEvents  = "prasadam.offering.events"
	TopicUserEvents      = "prasadam.user.events"
	TopicDeadLetterQueue = "prasadam.dlq"
)

// Kafka headers для retry-логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — событие жизненного цикла заказа.
type OrderEvent struct {
	EventType  EventType      `json:"event_type"`
	OrderID    string         `json:"order_id"`
	UID        string         `json:"uid"`
	OfferingID string         `json:"offering_id"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OfferingEvent — событие жизненного цикла предложения.
type OfferingEvent struct {
	EventType  EventType      `json:"event_type"`
	OfferingID string         `json:"offering_id"`
	OwnerUID   string         `json:"owner_uid"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UserEvent — событие жизненного цикла пользователя.
type UserEvent struct {
	EventType EventType      `json:"event_type"`
	UID       string         `json:"uid"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа со штампом текущего времени.
func NewOrderEvent(eventType EventType, orderID, uid, offeringID, status string, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		UID:        uid,
		OfferingID: offeringID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewOfferingEvent создаёт событие предложения.
func NewOfferingEvent(eventType EventType, offeringID, ownerUID, status string, metadata map[string]any) *OfferingEvent {
	return &OfferingEvent{
		EventType:  eventType,
		OfferingID: offeringID,
		OwnerUID:   ownerUID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewUserEvent создаёт событие пользователя.
func NewUserEvent(eventType EventType, uid string, metadata map[string]any) *UserEvent {
	return &UserEvent{
		EventType: eventType,
		UID:       uid,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// TopicForAggregate возвращает topic по типу агрегата outbox-сообщения.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case "order":
		return TopicOrderEvents
	case "offering":
		return TopicOfferingEvents
	case "user":
		return TopicUserEvents
	default:
		return TopicOrderEvents
	}
}
