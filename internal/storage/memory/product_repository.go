package memory

import "github.com/vladislavdragonenkov/ofs/internal/domain"

// productRepo — реализация ProductRepository поверх снимка состояния.
type productRepo struct {
	u *unitOfWork
}

// Create сохраняет новый товар, если ID ещё не занят.
func (r *productRepo) Create(product domain.Product) error {
	st, release := r.u.mutate()
	defer release()

	if _, exists := st.products[product.ID]; exists {
		return domain.ErrProductVersionConflict
	}
	st.products[product.ID] = cloneProduct(product)
	return nil
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepo) Get(id string) (domain.Product, error) {
	st, release := r.u.view()
	defer release()

	product, ok := st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

// Save перезаписывает товар, проверяя версию (optimistic locking).
// Так два параллельных заказа не спишут один и тот же остаток дважды.
func (r *productRepo) Save(product domain.Product) error {
	st, release := r.u.mutate()
	defer release()

	current, ok := st.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrProductVersionConflict
	}

	product.Version++
	st.products[product.ID] = cloneProduct(product)
	return nil
}

var _ domain.ProductRepository = (*productRepo)(nil)
