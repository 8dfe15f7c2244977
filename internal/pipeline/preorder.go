package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// preorderCancellationWindow — за сколько дней до релиза закрывается отмена.
const preorderCancellationWindow = 7

// releaseDateLayout — нормализованный формат даты релиза в metadata.
const releaseDateLayout = "2006-01-02"

// PreorderHandler обрабатывает предзаказы товаров с будущей датой релиза.
type PreorderHandler struct {
	delivery domain.DeliveryCalculator
	logger   *log.Entry
	now      func() time.Time
}

// NewPreorderHandler создаёт хендлер предзаказов.
func NewPreorderHandler(delivery domain.DeliveryCalculator, logger *log.Entry) *PreorderHandler {
	if logger == nil {
		logger = log.WithField("component", "preorder-handler")
	}
	return &PreorderHandler{delivery: delivery, logger: logger, now: time.Now}
}

// Category возвращает категорию preorder.
func (h *PreorderHandler) Category() domain.Category {
	return domain.CategoryPreorder
}

// Validate проверяет, что дата релиза парсится, лежит в будущем,
// а отслеживаемого остатка хватает на запрошенное количество.
func (h *PreorderHandler) Validate(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, _ *domain.Order) (domain.Result, error) {
	release, err := parseISODate(domain.MetaString(product.Metadata, domain.MetaReleaseDate))
	if err != nil {
		return domain.Fail(domain.CodeInvalidReleaseDate), nil
	}
	if !release.After(h.now().UTC()) {
		return domain.Fail(domain.CodeReleaseDatePassed), nil
	}

	if product.StockTracked() && product.StockAvailable() < item.Qty {
		return domain.Fail(domain.CodePreorderSoldOut), nil
	}

	return domain.OK(), nil
}

// Process пишет нормализованную дату релиза и дату последней отмены в
// metadata, считает срок доставки при известном складе и применяет
// предзаказную скидку к снапшоту цены позиции.
func (h *PreorderHandler) Process(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	release, err := parseISODate(domain.MetaString(product.Metadata, domain.MetaReleaseDate))
	if err != nil {
		return domain.Fail(domain.CodeInvalidReleaseDate), nil
	}

	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}
	item.Metadata[domain.MetaReleaseDate] = release.Format(releaseDateLayout)
	item.Metadata[domain.MetaMaxCancellationDate] = release.AddDate(0, 0, -preorderCancellationWindow).Format(releaseDateLayout)

	if warehouse := domain.MetaString(item.Metadata, domain.MetaWarehouse); strings.TrimSpace(warehouse) != "" {
		item.Metadata[domain.MetaDeliveryDays] = int64(h.delivery.Days(warehouse))
	}

	if discount, ok := domain.MetaInt64(product.Metadata, domain.MetaPreorderDiscountMinor); ok && discount > 0 {
		if discount > item.PriceMinor {
			discount = item.PriceMinor
		}
		item.PriceMinor -= discount
		item.Metadata[domain.MetaPreorderDiscountMinor] = discount
	}

	h.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"item_id":    item.ID,
		"product_id": product.ID,
		"release":    item.Metadata[domain.MetaReleaseDate],
	}).Debug("preorder item processed")

	return domain.OK(), nil
}

// parseISODate принимает ISO-даты с временем (RFC3339) и без.
func parseISODate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(releaseDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

var _ ItemHandler = (*PreorderHandler)(nil)
