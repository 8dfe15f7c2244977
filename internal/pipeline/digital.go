package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// DefaultDeliveryEmail используется, если в metadata позиции нет адреса доставки.
const DefaultDeliveryEmail = "customer@example.com"

// DigitalHandler обрабатывает цифровые лицензии.
type DigitalHandler struct {
	email  domain.EmailSender
	logger *log.Entry
	now    func() time.Time
}

// NewDigitalHandler создаёт хендлер цифровых товаров.
func NewDigitalHandler(email domain.EmailSender, logger *log.Entry) *DigitalHandler {
	if logger == nil {
		logger = log.WithField("component", "digital-handler")
	}
	return &DigitalHandler{email: email, logger: logger, now: time.Now}
}

// Category возвращает категорию digital.
func (h *DigitalHandler) Category() domain.Category {
	return domain.CategoryDigital
}

// Validate проверяет активность, права дистрибуции, пул лицензий и то,
// что клиент ещё не владеет этим товаром.
func (h *DigitalHandler) Validate(_ context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	if !product.Active {
		return domain.Fail(domain.CodeLicenseUnavailable), nil
	}

	if until := domain.MetaString(product.Metadata, domain.MetaDistributionRightsUntil); until != "" {
		deadline, err := parseISODate(until)
		if err == nil && !deadline.After(h.now().UTC()) {
			return domain.Fail(domain.CodeDistributionRightsExpired), nil
		}
	}

	// Остаток цифрового товара — размер пула ключей активации.
	if product.StockTracked() && product.StockAvailable() < 1 {
		return domain.Fail(domain.CodeLicenseUnavailable), nil
	}

	history, err := tx.Orders().ListByCustomerAndProduct(order.CustomerID, product.ID, domain.OrderStatusProcessed)
	if err != nil {
		return domain.Result{}, fmt.Errorf("lookup customer history: %w", err)
	}
	if len(history) > 0 {
		return domain.Fail(domain.CodeAlreadyOwned), nil
	}

	return domain.OK(), nil
}

// Process нормализует количество до одной лицензии, списывает её из пула,
// выпускает ключ активации и отправляет письмо с доставкой.
func (h *DigitalHandler) Process(ctx context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	// Клиент получает ровно одну лицензию независимо от запрошенного количества.
	item.Qty = 1

	if product.StockTracked() {
		if product.StockAvailable() < 1 {
			return domain.Fail(domain.CodeLicenseUnavailable), nil
		}
		product.DecrementStock(1)
		if err := tx.Products().Save(*product); err != nil {
			return domain.Result{}, fmt.Errorf("save product %s: %w", product.ID, err)
		}
	}

	activationKey := uuid.NewString()
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}
	item.Metadata[domain.MetaActivationKey] = activationKey

	address := domain.MetaString(item.Metadata, domain.MetaDeliveryEmail)
	if address == "" {
		address = DefaultDeliveryEmail
	}

	subject := fmt.Sprintf("Your license for %s", product.ID)
	body := fmt.Sprintf("Activation key: %s", activationKey)
	if err := h.email.Send(ctx, address, subject, body); err != nil {
		// Доставка письма best-effort: сбой не валит обработку заказа.
		h.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"item_id":  item.ID,
			"address":  address,
		}).Warn("delivery email failed")
	}

	return domain.OK(), nil
}

var _ ItemHandler = (*DigitalHandler)(nil)
