package domain

import (
	"context"
	"time"
)

// FraudChecker — антифрод-политика, консультируемая глобальным хендлером заказа.
type FraudChecker interface {
	// Flagged возвращает true, если заказ должен уйти на ручную проверку.
	Flagged(order *Order) bool
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// Capture инициирует списание средств по заказу.
	// Бизнес-отказ — ErrPaymentDeclined; остальные ошибки инфраструктурные.
	Capture(ctx context.Context, order *Order) error
}

// DeliveryCalculator считает срок доставки по коду склада.
// Код склада нормализуется: регистр и пробелы игнорируются.
type DeliveryCalculator interface {
	// Days возвращает срок доставки в днях; склад вне карты сроков
	// получает срок по умолчанию.
	Days(warehouse string) int
	// Known сообщает, обслуживается ли склад сетью доставки.
	Known(warehouse string) bool
}

// EmailSender отправляет письмо с доставкой цифрового товара.
type EmailSender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
