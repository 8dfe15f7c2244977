package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в OFS.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, событие создания ещё не обработано.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessed — заказ прошёл валидацию и обработку.
	OrderStatusProcessed OrderStatus = "processed"
	// OrderStatusFailed — обработка завершилась бизнес-ошибкой.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusPendingApproval — заказ отправлен на ручную проверку оператором.
	OrderStatusPendingApproval OrderStatus = "pending_approval"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessed, OrderStatusFailed, OrderStatusPendingApproval:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным: из него нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusProcessed || s == OrderStatusFailed || s == OrderStatusPendingApproval
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — идентификатор товара из каталога.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — снапшот цены за единицу на момент создания заказа,
	// в минимальных денежных единицах.
	PriceMinor int64
	// Metadata — категорийные поля позиции (склад, налоговые реквизиты,
	// дата релиза). Хендлеры пишут сюда результаты обработки, и эти записи
	// видны следующим хендлерам в рамках одного прохода pipeline.
	Metadata map[string]any
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	CustomerID  string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	Items       []OrderItem
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price (снапшот цены).
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
