package pipeline

import (
	"context"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// ItemHandler — бизнес-правила ровно одной категории товара.
// Validate не имеет побочных эффектов; Process мутирует остатки, метаданные
// позиции и ставит события в outbox внутри переданной транзакции.
type ItemHandler interface {
	// Category возвращает категорию, которую обслуживает хендлер.
	Category() domain.Category
	// Validate проверяет позицию. Бизнес-нарушения возвращаются в Result,
	// error — только для инфраструктурных сбоев (недоступное хранилище и т.п.).
	Validate(ctx context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error)
	// Process применяет побочные эффекты обработки позиции.
	Process(ctx context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error)
}

// OrderHandler — правило уровня заказа, выполняемое после всех item-хендлеров.
type OrderHandler interface {
	// Name идентифицирует правило в логах и метриках.
	Name() string
	Validate(ctx context.Context, tx domain.UnitOfWork, order *domain.Order) (domain.Result, error)
	Process(ctx context.Context, tx domain.UnitOfWork, order *domain.Order) (domain.Result, error)
}
