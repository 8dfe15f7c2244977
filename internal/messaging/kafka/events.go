package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Типы событий жизненного цикла заказа.
const (
	EventTypeOrderCreated         = "order.created"
	EventTypeOrderProcessed       = "order.processed"
	EventTypeOrderFailed          = "order.failed"
	EventTypeOrderPendingApproval = "order.pending_approval"
	EventTypeLowStock             = "stock.low"
)

// Topics для Kafka. Входящий топик ключуется order_id: события одного
// заказа попадают в одну партицию и обрабатываются последовательно.
const (
	TopicOrderCreated    = "ofs.order.created"
	TopicOrderEvents     = "ofs.order.events"
	TopicDeadLetterQueue = "ofs.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderCreatedItem — снапшот позиции заказа во входящем событии.
type OrderCreatedItem struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"product_id"`
	Qty        int32          `json:"qty"`
	PriceMinor int64          `json:"price_minor"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OrderCreatedEvent — входящее событие создания заказа.
type OrderCreatedEvent struct {
	EventID       string             `json:"event_id"`
	EventType     string             `json:"event_type"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
	OrderID       string             `json:"order_id"`
	CustomerID    string             `json:"customer_id"`
	Status        string             `json:"status"`
	Currency      string             `json:"currency"`
	AmountMinor   int64              `json:"amount_minor"`
	Items         []OrderCreatedItem `json:"items"`
}

// Validate проверяет обязательные поля входящего события.
func (e *OrderCreatedEvent) Validate() error {
	if e.EventID == "" {
		return domain.ErrEventIDRequired
	}
	if e.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	if e.EventType != EventTypeOrderCreated {
		return fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if len(e.Items) == 0 {
		return fmt.Errorf("order %s has no items", e.OrderID)
	}
	for _, item := range e.Items {
		if item.ProductID == "" {
			return fmt.Errorf("item %s has empty product id", item.ID)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("item %s has non-positive qty %d", item.ID, item.Qty)
		}
	}
	return nil
}

// NewOrderCreatedEvent собирает входящее событие из заказа (используется
// генератором нагрузки и тестами).
func NewOrderCreatedEvent(order *domain.Order, correlationID string) *OrderCreatedEvent {
	items := make([]OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderCreatedItem{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Metadata:   domain.CloneMetadata(item.Metadata),
		})
	}
	return &OrderCreatedEvent{
		EventID:       uuid.NewString(),
		EventType:     EventTypeOrderCreated,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		Currency:      order.Currency,
		AmountMinor:   order.AmountMinor,
		Items:         items,
	}
}

// OrderLifecycleEvent — исходящее событие смены статуса заказа,
// публикуемое через transactional outbox.
type OrderLifecycleEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	Status        string    `json:"status"`
	ReasonCodes   []string  `json:"reason_codes,omitempty"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
}

// NewOrderLifecycleEvent собирает исходящее событие по текущему состоянию заказа.
func NewOrderLifecycleEvent(order *domain.Order, eventType string, reasonCodes []string, correlationID string) *OrderLifecycleEvent {
	return &OrderLifecycleEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		ReasonCodes:   reasonCodes,
		AmountMinor:   order.AmountMinor,
		Currency:      order.Currency,
	}
}

// ParseOrderCreatedEvent парсит OrderCreatedEvent из сообщения Kafka.
func ParseOrderCreatedEvent(message *sarama.ConsumerMessage) (*OrderCreatedEvent, error) {
	var event OrderCreatedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order created event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid order created event: %w", err)
	}
	return &event, nil
}
