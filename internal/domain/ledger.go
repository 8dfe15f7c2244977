package domain

import "time"

// ProcessedEvent — запись dedup ledger об обработанном входящем событии.
// EventID глобально уникален: повторная вставка с тем же идентификатором
// не ошибка, а сигнал "уже обработано".
type ProcessedEvent struct {
	// EventID — уникальный идентификатор входящего события.
	EventID string
	// OrderID — заказ, к которому относилось событие.
	OrderID string
	// EventType — тип входящего события (например order.created).
	EventType string
	// ResultStatus — статус заказа, которым закончилась обработка.
	ResultStatus OrderStatus
	// Payload — сериализованное входящее событие для аудита.
	Payload []byte
	// TTLAt — момент, после которого запись может быть удалена cleanup-воркером.
	TTLAt time.Time
	// InsertedAt фиксирует момент первой вставки.
	InsertedAt time.Time
}
