package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomerAndProduct возвращает заказы клиента, содержащие товар,
	// с опциональным фильтром по статусу (пустой статус — без фильтра).
	ListByCustomerAndProduct(customerID, productID string, status OrderStatus) ([]Order, error)
	// ListActiveSubscriptions возвращает processed-заказы клиента с подписками;
	// непустой groupID ограничивает выборку одной группой.
	ListActiveSubscriptions(customerID, groupID string) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ProductRepository описывает требования к каталогу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар.
	Create(product Product) error
	// Get возвращает товар или ErrProductNotFound, если его нет.
	Get(id string) (Product, error)
	// Save применяет обновления (остаток, метаданные) с учётом optimistic locking.
	Save(product Product) error
}

// LedgerRepository хранит dedup ledger обработанных событий.
type LedgerRepository interface {
	// Insert выполняет атомарную условную вставку по event_id.
	// Возвращает inserted=false без ошибки, если событие уже было записано.
	Insert(entry ProcessedEvent) (ProcessedEvent, bool, error)
	// MarkResult фиксирует статус заказа, которым закончилась обработка события.
	MarkResult(eventID string, status OrderStatus) error
	// Get возвращает запись или ErrEventNotFound.
	Get(eventID string) (ProcessedEvent, error)
	// DeleteExpired удаляет записи с ttl_at <= before, не более limit за вызов (limit<=0 — без лимита).
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
