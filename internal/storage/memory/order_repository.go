package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// orderRepo — реализация OrderRepository поверх снимка состояния.
type orderRepo struct {
	u *unitOfWork
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepo) Create(order domain.Order) error {
	st, release := r.u.mutate()
	defer release()

	if _, exists := st.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	st.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepo) Get(id string) (domain.Order, error) {
	st, release := r.u.view()
	defer release()

	order, ok := st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomerAndProduct возвращает заказы клиента, содержащие товар.
// Пустой status отключает фильтр по статусу.
func (r *orderRepo) ListByCustomerAndProduct(customerID, productID string, status domain.OrderStatus) ([]domain.Order, error) {
	st, release := r.u.view()
	defer release()

	var result []domain.Order
	for _, order := range st.orders {
		if order.CustomerID != customerID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				result = append(result, cloneOrder(order))
				break
			}
		}
	}

	sortOrders(result)
	return result, nil
}

// ListActiveSubscriptions возвращает processed-заказы клиента, содержащие
// подписочные товары; непустой groupID ограничивает выборку одной группой.
func (r *orderRepo) ListActiveSubscriptions(customerID, groupID string) ([]domain.Order, error) {
	st, release := r.u.view()
	defer release()

	var result []domain.Order
	for _, order := range st.orders {
		if order.CustomerID != customerID || order.Status != domain.OrderStatusProcessed {
			continue
		}
		for _, item := range order.Items {
			product, ok := st.products[item.ProductID]
			if !ok || product.Category != domain.CategorySubscription {
				continue
			}
			if groupID != "" && domain.MetaString(product.Metadata, domain.MetaGroupID) != groupID {
				continue
			}
			result = append(result, cloneOrder(order))
			break
		}
	}

	sortOrders(result)
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepo) Save(order domain.Order) error {
	st, release := r.u.mutate()
	defer release()

	current, ok := st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	st.orders[order.ID] = cloneOrder(order)
	return nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var _ domain.OrderRepository = (*orderRepo)(nil)
