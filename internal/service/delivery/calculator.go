package delivery

import (
	"strings"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Сроки доставки по складам в днях.
const (
	DaysSaoPaulo     = 5
	DaysRioDeJaneiro = 7
	DaysMinasGerais  = 10
	DaysDefault      = 10
)

// Calculator оценивает сроки доставки по коду склада.
// Коды нормализуются к верхнему регистру без пробелов по краям.
type Calculator struct {
	days map[string]int
}

// NewCalculator возвращает калькулятор с таблицей известных складов.
func NewCalculator() *Calculator {
	return &Calculator{
		days: map[string]int{
			"SP": DaysSaoPaulo,
			"RJ": DaysRioDeJaneiro,
			"MG": DaysMinasGerais,
		},
	}
}

// Known сообщает, привязан ли код склада к действующей площадке.
func (c *Calculator) Known(warehouse string) bool {
	_, ok := c.days[normalize(warehouse)]
	return ok
}

// Days возвращает срок доставки в днях. Для неизвестного склада
// возвращается консервативная оценка по умолчанию.
func (c *Calculator) Days(warehouse string) int {
	if days, ok := c.days[normalize(warehouse)]; ok {
		return days
	}
	return DaysDefault
}

func normalize(warehouse string) string {
	return strings.ToUpper(strings.TrimSpace(warehouse))
}

var _ domain.DeliveryCalculator = (*Calculator)(nil)
