package domain

import "time"

// Category определяет категорию товара. Ровно один item handler
// регистрируется на каждую категорию.
type Category string

const (
	// CategoryPhysical — физический товар со складским остатком.
	CategoryPhysical Category = "physical"
	// CategoryDigital — цифровая лицензия с пулом ключей активации.
	CategoryDigital Category = "digital"
	// CategorySubscription — периодическая подписка, сгруппированная по group_id.
	CategorySubscription Category = "subscription"
	// CategoryPreorder — предзаказ товара с будущей датой релиза.
	CategoryPreorder Category = "preorder"
	// CategoryCorporate — корпоративная оптовая закупка.
	CategoryCorporate Category = "corporate"
)

// Valid проверяет, что категория относится к поддерживаемым значениям.
func (c Category) Valid() bool {
	switch c {
	case CategoryPhysical, CategoryDigital, CategorySubscription, CategoryPreorder, CategoryCorporate:
		return true
	default:
		return false
	}
}

// Product описывает товар каталога.
type Product struct {
	ID         string
	Category   Category
	PriceMinor int64
	// Stock — складской остаток; nil означает, что остаток не отслеживается.
	Stock *int32
	Active bool
	// Metadata — категорийные атрибуты товара: group_id подписки,
	// release_date предзаказа, размер скидки и т.п.
	Metadata  map[string]any
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockTracked сообщает, отслеживается ли складской остаток товара.
func (p *Product) StockTracked() bool {
	return p.Stock != nil
}

// StockAvailable возвращает доступный остаток; для неотслеживаемых товаров 0.
func (p *Product) StockAvailable() int32 {
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}

// DecrementStock уменьшает остаток на qty. Для неотслеживаемых товаров no-op.
func (p *Product) DecrementStock(qty int32) {
	if p.Stock == nil {
		return
	}
	remaining := *p.Stock - qty
	p.Stock = &remaining
}
