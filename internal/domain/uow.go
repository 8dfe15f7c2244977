package domain

import "context"

// UnitOfWork — явная граница транзакции обработки одного события.
// Все репозитории привязаны к одной транзакции: ledger-вставка, мутации
// заказа и товаров и постановка исходящих событий в outbox коммитятся
// атомарно или не коммитятся вовсе.
type UnitOfWork interface {
	Orders() OrderRepository
	Products() ProductRepository
	Ledger() LedgerRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// TxRunner выполняет функцию внутри транзакции.
type TxRunner interface {
	// WithinTx открывает транзакцию, выполняет fn и коммитит, если fn
	// вернула nil. Любая ошибка fn откатывает все накопленные изменения.
	WithinTx(ctx context.Context, fn func(tx UnitOfWork) error) error
}
