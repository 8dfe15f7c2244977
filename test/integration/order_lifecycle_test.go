package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/pipeline"
	"github.com/vladislavdragonenkov/ofs/internal/service/delivery"
	"github.com/vladislavdragonenkov/ofs/internal/service/email"
	"github.com/vladislavdragonenkov/ofs/internal/service/fraud"
	"github.com/vladislavdragonenkov/ofs/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ofs/internal/service/payment"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

const (
	testHighValueThreshold = int64(1_000_000)
	testCreditLimit        = int64(10_000_000)
	testReviewThreshold    = int64(5_000_000)
)

// OrderLifecycleTestSuite гоняет полный цикл обработки события
// order.created: ledger, pipeline, статус заказа, outbox и timeline.
type OrderLifecycleTestSuite struct {
	suite.Suite
	store   *memory.Store
	service *lifecycle.Service
	seq     int
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.store = memory.NewStore()
	suite.seq = 0

	deliveryCalc := delivery.NewCalculator()
	registry, err := pipeline.NewRegistry(
		pipeline.NewPhysicalHandler(deliveryCalc, logger, nil),
		pipeline.NewDigitalHandler(email.NewLogSender(), logger),
		pipeline.NewSubscriptionHandler(logger),
		pipeline.NewPreorderHandler(deliveryCalc, logger),
		pipeline.NewCorporateHandler(pipeline.CorporateConfig{
			CreditLimitMinor:     testCreditLimit,
			ReviewThresholdMinor: testReviewThreshold,
		}, logger),
	)
	require.NoError(suite.T(), err)

	// Нулевые вероятности, чтобы платежи и антифрод были детерминированными.
	globals := pipeline.DefaultGlobalHandlers(
		testHighValueThreshold,
		fraud.NewPolicy(testHighValueThreshold, 0),
		payment.NewBreakerGateway(payment.NewSimulatedGateway(0, 0)),
		logger,
	)

	pipe := pipeline.New(registry, globals, logger, nil)
	suite.service = lifecycle.NewService(suite.store, pipe, nil, time.Hour)
}

func (suite *OrderLifecycleTestSuite) seedProduct(category domain.Category, stock *int32, meta map[string]any) string {
	suite.seq++
	id := fmt.Sprintf("prod-%s-%d", category, suite.seq)
	require.NoError(suite.T(), suite.store.Products().Create(domain.Product{
		ID:         id,
		Category:   category,
		PriceMinor: 10_000,
		Stock:      stock,
		Active:     true,
		Metadata:   meta,
	}))
	return id
}

func (suite *OrderLifecycleTestSuite) seedOrder(productID string, qty int32, priceMinor int64, itemMeta map[string]any) domain.Order {
	suite.seq++
	now := time.Now().UTC()
	order := domain.Order{
		ID:          fmt.Sprintf("order-%d", suite.seq),
		CustomerID:  fmt.Sprintf("customer-%d", suite.seq),
		Status:      domain.OrderStatusPending,
		Currency:    "BRL",
		AmountMinor: priceMinor * int64(qty),
		Items: []domain.OrderItem{
			{
				ID:         fmt.Sprintf("item-%d", suite.seq),
				ProductID:  productID,
				Qty:        qty,
				PriceMinor: priceMinor,
				Metadata:   itemMeta,
			},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(suite.T(), suite.store.Orders().Create(order))
	return order
}

func (suite *OrderLifecycleTestSuite) handle(order *domain.Order) *kafka.OrderCreatedEvent {
	event := kafka.NewOrderCreatedEvent(order, "integration")
	require.NoError(suite.T(), suite.service.Handle(context.Background(), event))
	return event
}

func (suite *OrderLifecycleTestSuite) TestPhysicalOrderProcessed() {
	stock := int32(10)
	productID := suite.seedProduct(domain.CategoryPhysical, &stock, nil)
	order := suite.seedOrder(productID, 2, 10_000, map[string]any{domain.MetaWarehouse: "SP"})

	event := suite.handle(&order)

	// Статус и версия заказа.
	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusProcessed, updated.Status)
	require.Greater(suite.T(), updated.Version, order.Version)

	// Результаты обработки в metadata позиции.
	require.Equal(suite.T(), delivery.DaysSaoPaulo,
		int(mustMetaInt64(suite.T(), updated.Items[0].Metadata, domain.MetaDeliveryDays)))

	// Остаток списан.
	product, err := suite.store.Products().Get(productID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(8), product.StockAvailable())

	// Ledger зафиксировал итог.
	processed, err := suite.store.Ledger().Get(event.EventID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusProcessed, processed.ResultStatus)

	// Исходящее событие в outbox.
	pendingOut, err := suite.store.Outbox().PullPending(10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), pendingOut, 1)
	require.Equal(suite.T(), kafka.EventTypeOrderProcessed, pendingOut[0].EventType)
	require.Equal(suite.T(), order.ID, pendingOut[0].AggregateID)

	// Запись в таймлайне.
	timeline, err := suite.store.Timeline().List(order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), timeline, 1)
	require.Equal(suite.T(), kafka.EventTypeOrderProcessed, timeline[0].Type)
}

func (suite *OrderLifecycleTestSuite) TestDuplicateEventHasNoSecondEffect() {
	stock := int32(5)
	productID := suite.seedProduct(domain.CategoryPhysical, &stock, nil)
	order := suite.seedOrder(productID, 1, 10_000, map[string]any{domain.MetaWarehouse: "SP"})

	event := suite.handle(&order)

	// Повторная доставка того же события.
	require.NoError(suite.T(), suite.service.Handle(context.Background(), event))

	product, err := suite.store.Products().Get(productID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(4), product.StockAvailable(), "stock must be deducted exactly once")

	timeline, err := suite.store.Timeline().List(order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), timeline, 1, "duplicate must not append timeline events")
}

func (suite *OrderLifecycleTestSuite) TestValidationFailureFailsOrder() {
	productID := suite.seedProduct(domain.CategoryPhysical, nil, nil)
	order := suite.seedOrder(productID, 1, 10_000, map[string]any{domain.MetaWarehouse: "XX"})

	event := suite.handle(&order)

	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusFailed, updated.Status)

	processed, err := suite.store.Ledger().Get(event.EventID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusFailed, processed.ResultStatus)

	timeline, err := suite.store.Timeline().List(order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), timeline, 1)
	require.Equal(suite.T(), kafka.EventTypeOrderFailed, timeline[0].Type)
	require.Contains(suite.T(), timeline[0].Reason, string(domain.CodeWarehouseUnavailable))
}

func (suite *OrderLifecycleTestSuite) TestOutOfStockFailsOrder() {
	stock := int32(1)
	productID := suite.seedProduct(domain.CategoryPhysical, &stock, nil)
	order := suite.seedOrder(productID, 3, 10_000, map[string]any{domain.MetaWarehouse: "RJ"})

	suite.handle(&order)

	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusFailed, updated.Status)

	// Остаток не тронут.
	product, err := suite.store.Products().Get(productID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int32(1), product.StockAvailable())
}

func (suite *OrderLifecycleTestSuite) TestHighValueOrderPendingApproval() {
	productID := suite.seedProduct(domain.CategoryDigital, nil, nil)
	order := suite.seedOrder(productID, 1, testHighValueThreshold+1, nil)

	event := suite.handle(&order)

	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPendingApproval, updated.Status)

	processed, err := suite.store.Ledger().Get(event.EventID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPendingApproval, processed.ResultStatus)

	pendingOut, err := suite.store.Outbox().PullPending(10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), pendingOut, 1)
	require.Equal(suite.T(), kafka.EventTypeOrderPendingApproval, pendingOut[0].EventType)
}

func (suite *OrderLifecycleTestSuite) TestCorporateReviewThreshold() {
	productID := suite.seedProduct(domain.CategoryCorporate, nil, nil)
	order := suite.seedOrder(productID, 1, testReviewThreshold+1, map[string]any{
		domain.MetaTaxID:        "12.345.678/0001-95",
		domain.MetaPaymentTerms: "NET 30",
	})

	suite.handle(&order)

	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPendingApproval, updated.Status)
}

func (suite *OrderLifecycleTestSuite) TestSubscriptionProcessed() {
	productID := suite.seedProduct(domain.CategorySubscription, nil, map[string]any{
		domain.MetaGroupID: "news-daily",
	})
	order := suite.seedOrder(productID, 1, 2_000, nil)

	suite.handle(&order)

	updated, err := suite.store.Orders().Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusProcessed, updated.Status)
}

func (suite *OrderLifecycleTestSuite) TestMissingOrderRecordedAndSkipped() {
	now := time.Now().UTC()
	ghost := domain.Order{
		ID:          "order-ghost",
		CustomerID:  "customer-ghost",
		Status:      domain.OrderStatusPending,
		Currency:    "BRL",
		AmountMinor: 100,
		Items: []domain.OrderItem{
			{ID: "item-ghost", ProductID: "prod-ghost", Qty: 1, PriceMinor: 100},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event := kafka.NewOrderCreatedEvent(&ghost, "integration")
	require.NoError(suite.T(), suite.service.Handle(context.Background(), event))

	// Событие зафиксировано в ledger, но заказа и побочных эффектов нет.
	_, err := suite.store.Ledger().Get(event.EventID)
	require.NoError(suite.T(), err)

	pendingOut, err := suite.store.Outbox().PullPending(10)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), pendingOut)
}

func (suite *OrderLifecycleTestSuite) TestNonPendingOrderSkipped() {
	productID := suite.seedProduct(domain.CategoryDigital, nil, nil)
	order := suite.seedOrder(productID, 1, 1_000, nil)

	// Первое событие доводит заказ до терминального статуса.
	suite.handle(&order)

	// Новое событие по уже обработанному заказу.
	second := kafka.NewOrderCreatedEvent(&order, "integration")
	require.NoError(suite.T(), suite.service.Handle(context.Background(), second))

	processed, err := suite.store.Ledger().Get(second.EventID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusProcessed, processed.ResultStatus)

	timeline, err := suite.store.Timeline().List(order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), timeline, 1, "skip must not append timeline events")
}

func mustMetaInt64(t *testing.T, meta map[string]any, key string) int64 {
	t.Helper()
	value, ok := domain.MetaInt64(meta, key)
	require.True(t, ok, "metadata key %s missing", key)
	return value
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
