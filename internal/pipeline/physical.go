package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
)

// LowStockThreshold — порог остатка, ниже которого эмитится stock.low алерт.
const LowStockThreshold = 5

// PhysicalHandler обрабатывает физические товары со складским остатком.
type PhysicalHandler struct {
	delivery domain.DeliveryCalculator
	logger   *log.Entry
	metrics  *metrics.PipelineMetrics
}

// NewPhysicalHandler создаёт хендлер физических товаров.
func NewPhysicalHandler(delivery domain.DeliveryCalculator, logger *log.Entry, m *metrics.PipelineMetrics) *PhysicalHandler {
	if logger == nil {
		logger = log.WithField("component", "physical-handler")
	}
	return &PhysicalHandler{delivery: delivery, logger: logger, metrics: m}
}

// Category возвращает категорию physical.
func (h *PhysicalHandler) Category() domain.Category {
	return domain.CategoryPhysical
}

// Validate проверяет склад, активность товара и достаточность остатка.
func (h *PhysicalHandler) Validate(_ context.Context, _ domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, _ *domain.Order) (domain.Result, error) {
	warehouse := domain.MetaString(item.Metadata, domain.MetaWarehouse)
	if strings.TrimSpace(warehouse) == "" || !h.delivery.Known(warehouse) {
		return domain.Fail(domain.CodeWarehouseUnavailable), nil
	}

	if !product.Active {
		return domain.Fail(domain.CodeOutOfStock), nil
	}

	// nil-остаток означает неотслеживаемый товар, проверка пропускается.
	if product.StockTracked() && product.StockAvailable() < item.Qty {
		return domain.Fail(domain.CodeOutOfStock), nil
	}

	return domain.OK(), nil
}

// Process списывает остаток, считает срок доставки и при необходимости
// ставит в outbox low-stock алерт.
func (h *PhysicalHandler) Process(ctx context.Context, tx domain.UnitOfWork, item *domain.OrderItem, product *domain.Product, order *domain.Order) (domain.Result, error) {
	if product.StockTracked() {
		if product.StockAvailable() < item.Qty {
			return domain.Fail(domain.CodeOutOfStock), nil
		}
		product.DecrementStock(item.Qty)
		if err := tx.Products().Save(*product); err != nil {
			return domain.Result{}, fmt.Errorf("save product %s: %w", product.ID, err)
		}

		if product.StockAvailable() < LowStockThreshold {
			if err := h.emitLowStockAlert(ctx, tx, product); err != nil {
				return domain.Result{}, err
			}
		}
	}

	warehouse := domain.MetaString(item.Metadata, domain.MetaWarehouse)
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}
	item.Metadata[domain.MetaDeliveryDays] = int64(h.delivery.Days(warehouse))

	h.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"item_id":    item.ID,
		"product_id": product.ID,
		"qty":        item.Qty,
		"warehouse":  warehouse,
	}).Debug("physical item processed")

	return domain.OK(), nil
}

func (h *PhysicalHandler) emitLowStockAlert(ctx context.Context, tx domain.UnitOfWork, product *domain.Product) error {
	payload, err := json.Marshal(map[string]any{
		"product_id":     product.ID,
		"current_stock":  product.StockAvailable(),
		"threshold":      LowStockThreshold,
		"ts":             time.Now().UTC().Format(time.RFC3339Nano),
		"correlation_id": domain.CorrelationIDFrom(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal low stock alert: %w", err)
	}

	msg := domain.OutboxMessage{
		AggregateType: "product",
		AggregateID:   product.ID,
		EventType:     kafka.EventTypeLowStock,
		Payload:       payload,
	}
	if _, err := tx.Outbox().Enqueue(msg); err != nil {
		return fmt.Errorf("enqueue low stock alert: %w", err)
	}

	if h.metrics != nil {
		h.metrics.RecordLowStockAlert()
	}
	h.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"stock":      product.StockAvailable(),
	}).Warn("low stock alert emitted")

	return nil
}

var _ ItemHandler = (*PhysicalHandler)(nil)
