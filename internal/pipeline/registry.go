package pipeline

import (
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Registry сопоставляет категорию товара ровно одному item-хендлеру.
// Таблица собирается один раз на старте; конфликт категорий — ошибка
// конфигурации, с которой сервис не должен подниматься.
type Registry struct {
	handlers map[domain.Category]ItemHandler
}

// NewRegistry строит реестр из явного списка хендлеров.
func NewRegistry(handlers ...ItemHandler) (*Registry, error) {
	table := make(map[domain.Category]ItemHandler, len(handlers))
	for _, handler := range handlers {
		category := handler.Category()
		if !category.Valid() {
			return nil, fmt.Errorf("handler declares unknown category %q: %w", category, domain.ErrUnsupportedCategory)
		}
		if _, exists := table[category]; exists {
			return nil, fmt.Errorf("category %q: %w", category, domain.ErrDuplicateHandler)
		}
		table[category] = handler
	}
	return &Registry{handlers: table}, nil
}

// Resolve возвращает хендлер категории или ErrUnsupportedCategory.
// Отсутствие хендлера — внутренняя ошибка, а не бизнес-нарушение клиента.
func (r *Registry) Resolve(category domain.Category) (ItemHandler, error) {
	handler, ok := r.handlers[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, domain.ErrUnsupportedCategory)
	}
	return handler, nil
}

// Categories возвращает отсортированный список зарегистрированных категорий.
func (r *Registry) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(r.handlers))
	for category := range r.handlers {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
