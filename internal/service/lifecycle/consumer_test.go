package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/pipeline"
	"github.com/vladislavdragonenkov/ofs/internal/service/delivery"
	"github.com/vladislavdragonenkov/ofs/internal/service/email"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

type stubFraud struct{ flagged bool }

func (s *stubFraud) Flagged(*domain.Order) bool { return s.flagged }

type stubPayments struct {
	err   error
	calls int
}

func (s *stubPayments) Capture(ctx context.Context, order *domain.Order) error {
	s.calls++
	return s.err
}

type fixture struct {
	store    *memory.Store
	service  *Service
	payments *stubPayments
	fraud    *stubFraud
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry, err := pipeline.NewRegistry(
		pipeline.NewPhysicalHandler(delivery.NewCalculator(), nil, nil),
		pipeline.NewDigitalHandler(email.NewLogSender(), nil),
		pipeline.NewSubscriptionHandler(nil),
		pipeline.NewPreorderHandler(delivery.NewCalculator(), nil),
		pipeline.NewCorporateHandler(pipeline.CorporateConfig{
			CreditLimitMinor:     100_000_00,
			ReviewThresholdMinor: 50_000_00,
		}, nil),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	fraud := &stubFraud{}
	payments := &stubPayments{}
	globals := pipeline.DefaultGlobalHandlers(1_000_000_00, fraud, payments, nil)
	pipe := pipeline.New(registry, globals, nil, nil)

	store := memory.NewStore()
	return &fixture{
		store:    store,
		service:  NewService(store, pipe, nil, time.Hour),
		payments: payments,
		fraud:    fraud,
	}
}

func (f *fixture) seedProduct(t *testing.T, product domain.Product) {
	t.Helper()
	if err := f.store.Products().Create(product); err != nil {
		t.Fatalf("seed product %s: %v", product.ID, err)
	}
}

func (f *fixture) seedOrder(t *testing.T, order domain.Order) {
	t.Helper()
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if err := f.store.Orders().Create(order); err != nil {
		t.Fatalf("seed order %s: %v", order.ID, err)
	}
}

func createdEvent(order domain.Order) *kafka.OrderCreatedEvent {
	return kafka.NewOrderCreatedEvent(&order, "corr-"+order.ID)
}

func int32ptr(v int32) *int32 { return &v }

func physicalOrder(stockQty int32) (domain.Product, domain.Order) {
	product := domain.Product{
		ID:       "prod-phys",
		Category: domain.CategoryPhysical,
		Stock:    int32ptr(stockQty),
		Active:   true,
	}
	order := domain.Order{
		ID:          "ord-phys",
		CustomerID:  "cust-1",
		Status:      domain.OrderStatusPending,
		Currency:    "RUB",
		AmountMinor: 2000,
		Items: []domain.OrderItem{
			{
				ID:         "item-1",
				ProductID:  product.ID,
				Qty:        2,
				PriceMinor: 1000,
				// Код склада живет в metadata позиции, не товара.
				Metadata: map[string]any{domain.MetaWarehouse: "SP"},
			},
		},
	}
	return product, order
}

func TestHandleProcessesPendingOrder(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := f.store.Orders().Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusProcessed {
		t.Fatalf("status = %s, want processed", got.Status)
	}

	saved, err := f.store.Products().Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if *saved.Stock != 8 {
		t.Errorf("stock = %d, want 8", *saved.Stock)
	}

	entry, err := f.store.Ledger().Get(event.EventID)
	if err != nil {
		t.Fatalf("ledger entry: %v", err)
	}
	if entry.ResultStatus != domain.OrderStatusProcessed {
		t.Errorf("ledger result = %s, want processed", entry.ResultStatus)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeOrderProcessed {
		t.Fatalf("outbox = %+v, want one order.processed", pending)
	}
	if f.payments.calls != 1 {
		t.Errorf("payment captures = %d, want 1", f.payments.calls)
	}
}

func TestHandleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	event := createdEvent(order)
	for i := 0; i < 3; i++ {
		if err := f.service.Handle(context.Background(), event); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 8 {
		t.Fatalf("stock after redeliveries = %d, want 8: effects must apply once", *saved.Stock)
	}
	if f.payments.calls != 1 {
		t.Fatalf("payment captures = %d, want 1", f.payments.calls)
	}
	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 {
		t.Fatalf("outbox events = %d, want 1", len(pending))
	}
}

func TestHandleValidationFailureMarksOrderFailed(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(1) // остатка на qty=2 не хватает
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 1 {
		t.Errorf("stock = %d, want untouched 1", *saved.Stock)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeOrderFailed {
		t.Fatalf("outbox = %+v, want one order.failed", pending)
	}
	if f.payments.calls != 0 {
		t.Errorf("payment must not be captured on validation failure")
	}
}

func TestHandleProcessFailureRollsBackSideEffects(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	// Валидация проходит, но списание падает бизнес-отказом на фазе
	// Process: списанный остаток обязан вернуться.
	f.payments.err = domain.ErrPaymentDeclined

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 10 {
		t.Fatalf("stock = %d, want 10: process failure must roll back stock", *saved.Stock)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeOrderFailed {
		t.Fatalf("outbox = %+v, want one order.failed", pending)
	}

	entry, _ := f.store.Ledger().Get(event.EventID)
	if entry.ResultStatus != domain.OrderStatusFailed {
		t.Errorf("ledger result = %s, want failed", entry.ResultStatus)
	}
}

func TestHandleFraudReviewGoesPendingApproval(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)
	f.fraud.flagged = true

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", got.Status)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeOrderPendingApproval {
		t.Fatalf("outbox = %+v, want one order.pending_approval", pending)
	}
	if f.payments.calls != 0 {
		t.Errorf("flagged order must not be charged")
	}
}

func TestHandleSkipsMissingOrder(t *testing.T) {
	f := newFixture(t)

	_, order := physicalOrder(10)
	event := createdEvent(order) // заказ не сидирован

	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Событие зафиксировано в ledger: повторная доставка — дубликат.
	if _, err := f.store.Ledger().Get(event.EventID); err != nil {
		t.Fatalf("ledger entry must exist: %v", err)
	}
	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("outbox must stay empty, got %+v", pending)
	}
}

func TestHandleSkipsNonPendingOrder(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	order.Status = domain.OrderStatusProcessed
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 10 {
		t.Fatalf("stock = %d, want untouched 10", *saved.Stock)
	}

	entry, err := f.store.Ledger().Get(event.EventID)
	if err != nil {
		t.Fatalf("ledger entry: %v", err)
	}
	if entry.ResultStatus != domain.OrderStatusProcessed {
		t.Errorf("ledger result = %s, want current order status", entry.ResultStatus)
	}
}

func TestHandleInfraErrorRecordsInternalError(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	// Транзиентная ошибка шлюза — инфраструктурный сбой, не decline.
	f.payments.err = domain.ErrPaymentTemporary

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle must absorb infra error: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 10 {
		t.Fatalf("stock = %d, want 10: infra failure must roll back effects", *saved.Stock)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeOrderFailed {
		t.Fatalf("outbox = %+v, want one order.failed", pending)
	}
}

// flakyRunner роняет заданное число вызовов WithinTx, имитируя
// транзиентные сбои инфраструктуры.
type flakyRunner struct {
	inner    domain.TxRunner
	failures int
}

func (r *flakyRunner) WithinTx(ctx context.Context, fn func(tx domain.UnitOfWork) error) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset by peer")
	}
	return r.inner.WithinTx(ctx, fn)
}

func TestHandleInfraErrorOnRedeliveryKeepsCommittedOutcome(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	event := createdEvent(order)
	if err := f.service.Handle(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// Повторная доставка уже зафиксированного события натыкается на
	// транзиентный сбой первой транзакции и уходит в recovery-путь.
	runner := &flakyRunner{inner: f.store, failures: 1}
	flaky := NewService(runner, f.service.pipe, nil, time.Hour)
	if err := flaky.Handle(context.Background(), event); err != nil {
		t.Fatalf("redelivery must absorb infra error: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusProcessed {
		t.Fatalf("status = %s, want processed: committed outcome must survive redelivery", got.Status)
	}

	entry, _ := f.store.Ledger().Get(event.EventID)
	if entry.ResultStatus != domain.OrderStatusProcessed {
		t.Fatalf("ledger result = %s, want processed", entry.ResultStatus)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 {
		t.Fatalf("outbox = %d messages, want exactly one per event id", len(pending))
	}
}

func TestRecordKeepsTerminalStatusOfForeignEvent(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	if err := f.service.Handle(context.Background(), createdEvent(order)); err != nil {
		t.Fatalf("first event: %v", err)
	}

	// Другое событие по уже обработанному заказу: сбой первой транзакции
	// выводит его в recovery-путь, но терминальный статус заказа и его
	// эффекты пересматриваться не должны.
	runner := &flakyRunner{inner: f.store, failures: 1}
	flaky := NewService(runner, f.service.pipe, nil, time.Hour)

	second := createdEvent(order)
	if err := flaky.Handle(context.Background(), second); err != nil {
		t.Fatalf("second event: %v", err)
	}

	got, _ := f.store.Orders().Get(order.ID)
	if got.Status != domain.OrderStatusProcessed {
		t.Fatalf("status = %s, want processed: terminal status must not be overwritten", got.Status)
	}

	saved, _ := f.store.Products().Get(product.ID)
	if *saved.Stock != 8 {
		t.Fatalf("stock = %d, want 8: recovery must not touch effects", *saved.Stock)
	}

	entry, _ := f.store.Ledger().Get(second.EventID)
	if entry.ResultStatus != domain.OrderStatusProcessed {
		t.Fatalf("ledger result = %s, want the order's current status", entry.ResultStatus)
	}

	pending, _ := f.store.Outbox().PullPending(10)
	if len(pending) != 1 {
		t.Fatalf("outbox = %d messages, want 1", len(pending))
	}
}

func TestHandleRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t)

	err := f.service.Handle(context.Background(), &kafka.OrderCreatedEvent{
		EventID:   uuid.NewString(),
		EventType: kafka.EventTypeOrderCreated,
	})
	if !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("error = %v, want ErrOrderIDRequired", err)
	}
}

func TestHandleWritesTimeline(t *testing.T) {
	f := newFixture(t)
	product, order := physicalOrder(10)
	f.seedProduct(t, product)
	f.seedOrder(t, order)

	if err := f.service.Handle(context.Background(), createdEvent(order)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	events, err := f.store.Timeline().List(order.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 1 || events[0].Type != kafka.EventTypeOrderProcessed {
		t.Fatalf("timeline = %+v, want one order.processed", events)
	}
}
