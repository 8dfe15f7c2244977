package pipeline

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// MaxActiveSubscriptions — предел активных подписок на одного клиента.
const MaxActiveSubscriptions = 5

// SubscriptionHandler обрабатывает подписки, сгруппированные по group_id
// товара. Остаток не мутируется: активация подписки — забота биллинга.
type SubscriptionHandler struct {
	logger *log.Entry
}

// NewSubscriptionHandler создаёт хендлер подписок.
func NewSubscriptionHandler(logger *log.Entry) *SubscriptionHandler {
	if logger == nil {
		logger = log.WithField("component", "subscription-handler")
	}
	return &SubscriptionHandler{logger: logger}
}

// Category возвращает категорию subscription.
func (h *SubscriptionHandler) Category() domain.Category {
	return domain.CategorySubscription
}

// Validate проверяет группу подписки, конфликты внутри заказа,
// дубликаты среди активных подписок клиента и их общий лимит.
func (h *SubscriptionHandler) Validate(_ context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	if !product.Active {
		return domain.Fail(domain.CodeLicenseUnavailable), nil
	}

	group := domain.MetaString(product.Metadata, domain.MetaGroupID)
	if group == "" {
		return domain.Fail(domain.CodeIncompatibleSubscriptions), nil
	}

	// Две позиции одного заказа не могут принадлежать одной группе подписки.
	for i := range order.Items {
		other := &order.Items[i]
		if other.ID == item.ID {
			continue
		}
		otherProduct, err := tx.Products().Get(other.ProductID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("resolve sibling product %s: %w", other.ProductID, err)
		}
		if otherProduct.Category != domain.CategorySubscription {
			continue
		}
		if domain.MetaString(otherProduct.Metadata, domain.MetaGroupID) == group {
			return domain.Fail(domain.CodeIncompatibleSubscriptions), nil
		}
	}

	inGroup, err := tx.Orders().ListActiveSubscriptions(order.CustomerID, group)
	if err != nil {
		return domain.Result{}, fmt.Errorf("lookup active subscriptions in group %s: %w", group, err)
	}
	if len(inGroup) > 0 {
		return domain.Fail(domain.CodeDuplicateActiveSubscription), nil
	}

	all, err := tx.Orders().ListActiveSubscriptions(order.CustomerID, "")
	if err != nil {
		return domain.Result{}, fmt.Errorf("lookup active subscriptions: %w", err)
	}
	if len(all) >= MaxActiveSubscriptions {
		return domain.Fail(domain.CodeSubscriptionLimitExceeded), nil
	}

	return domain.OK(), nil
}

// Process не мутирует остаток: только фиксирует намерение активировать подписку.
func (h *SubscriptionHandler) Process(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	h.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"item_id":     item.ID,
		"customer_id": order.CustomerID,
		"group_id":    domain.MetaString(product.Metadata, domain.MetaGroupID),
	}).Info("subscription activation scheduled")

	return domain.OK(), nil
}

var _ ItemHandler = (*SubscriptionHandler)(nil)
