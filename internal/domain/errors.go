package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductVersionConflict сигнализирует о гонке при обновлении остатка товара.
	ErrProductVersionConflict = errors.New("product version conflict")
	// ErrUnsupportedCategory — на категорию товара не зарегистрирован хендлер.
	// Это внутренняя ошибка конфигурации, а не бизнес-нарушение клиента.
	ErrUnsupportedCategory = errors.New("unsupported product category")
	// ErrDuplicateHandler — на категорию зарегистрировано два хендлера.
	// Ошибка стартовой конфигурации, сервис не должен подниматься.
	ErrDuplicateHandler = errors.New("duplicate item handler for category")
	// ErrEventIDRequired — у события отсутствует уникальный идентификатор.
	ErrEventIDRequired = errors.New("event_id is required")
	// ErrEventNotFound возвращается, если запись ledger не найдена.
	ErrEventNotFound = errors.New("processed event not found")
	// ErrOrderIDRequired — отсутствует идентификатор заказа в событии.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrPaymentDeclined — платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentTemporary — временная ошибка платёжного провайдера.
	ErrPaymentTemporary = errors.New("payment temporary error")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий заказа или товара.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}

// IsNotFound проверяет ошибки вида "не найдено" на границе consumer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrEventNotFound)
}
