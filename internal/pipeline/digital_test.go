package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/service/email"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

func digitalFixtures(stock *int32) (domain.Product, domain.OrderItem, domain.Order) {
	product := domain.Product{
		ID:       "game-1",
		Category: domain.CategoryDigital,
		Stock:    stock,
		Active:   true,
	}
	item := domain.OrderItem{ID: "item-1", ProductID: product.ID, Qty: 3, PriceMinor: 500}
	order := domain.Order{
		ID:         "ord-1",
		CustomerID: "cust-1",
		Status:     domain.OrderStatusPending,
		Items:      []domain.OrderItem{item},
	}
	return product, item, order
}

func TestDigitalValidateInactive(t *testing.T) {
	handler := NewDigitalHandler(email.NewLogSender(), nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(nil)
	product.Active = false

	res, err := handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.IsFailed() || res.Codes[0] != domain.CodeLicenseUnavailable {
		t.Fatalf("result = %+v, want LICENSE_UNAVAILABLE", res)
	}
}

func TestDigitalValidateDistributionRightsExpired(t *testing.T) {
	handler := NewDigitalHandler(email.NewLogSender(), nil)
	handler.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	store := memory.NewStore()

	product, item, order := digitalFixtures(nil)
	product.Metadata = map[string]any{domain.MetaDistributionRightsUntil: "2026-05-31"}

	res, err := handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.IsFailed() || res.Codes[0] != domain.CodeDistributionRightsExpired {
		t.Fatalf("result = %+v, want DISTRIBUTION_RIGHTS_EXPIRED", res)
	}

	// Права ещё действуют — проверка проходит.
	product.Metadata[domain.MetaDistributionRightsUntil] = "2027-01-01"
	res, err = handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil || !res.IsOK() {
		t.Fatalf("res=%+v err=%v, want ok", res, err)
	}
}

func TestDigitalValidateEmptyLicensePool(t *testing.T) {
	handler := NewDigitalHandler(email.NewLogSender(), nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(int32ptr(0))

	res, err := handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.IsFailed() || res.Codes[0] != domain.CodeLicenseUnavailable {
		t.Fatalf("result = %+v, want LICENSE_UNAVAILABLE", res)
	}
}

func TestDigitalValidateAlreadyOwned(t *testing.T) {
	handler := NewDigitalHandler(email.NewLogSender(), nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(nil)
	if err := store.Orders().Create(domain.Order{
		ID:         "prev",
		CustomerID: order.CustomerID,
		Status:     domain.OrderStatusProcessed,
		Items:      []domain.OrderItem{{ID: "pi", ProductID: product.ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	res, err := handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.IsFailed() || res.Codes[0] != domain.CodeAlreadyOwned {
		t.Fatalf("result = %+v, want ALREADY_OWNED", res)
	}
}

func TestDigitalValidateIgnoresFailedHistory(t *testing.T) {
	handler := NewDigitalHandler(email.NewLogSender(), nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(nil)
	if err := store.Orders().Create(domain.Order{
		ID:         "prev",
		CustomerID: order.CustomerID,
		Status:     domain.OrderStatusFailed,
		Items:      []domain.OrderItem{{ID: "pi", ProductID: product.ID, Qty: 1}},
	}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	res, err := handler.Validate(context.Background(), store, &item, &product, &order)
	if err != nil || !res.IsOK() {
		t.Fatalf("res=%+v err=%v, want ok: failed order is not ownership", res, err)
	}
}

func TestDigitalProcessNormalizesQtyAndIssuesKey(t *testing.T) {
	sender := email.NewLogSender()
	handler := NewDigitalHandler(sender, nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(int32ptr(5))
	if err := store.Products().Create(product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	product, _ = store.Products().Get(product.ID)

	res, err := handler.Process(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.IsOK() {
		t.Fatalf("result = %+v, want ok", res)
	}

	if item.Qty != 1 {
		t.Errorf("qty = %d, want normalized 1", item.Qty)
	}

	saved, _ := store.Products().Get(product.ID)
	if *saved.Stock != 4 {
		t.Errorf("license pool = %d, want 4: exactly one license is consumed", *saved.Stock)
	}

	key := domain.MetaString(item.Metadata, domain.MetaActivationKey)
	if key == "" {
		t.Fatal("activation key must be set")
	}

	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Address != DefaultDeliveryEmail {
		t.Fatalf("sent = %+v, want one email to default address", sent)
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, string, string, string) error {
	return errors.New("smtp down")
}

func TestDigitalProcessToleratesEmailFailure(t *testing.T) {
	handler := NewDigitalHandler(failingSender{}, nil)
	store := memory.NewStore()

	product, item, order := digitalFixtures(nil)

	res, err := handler.Process(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.IsOK() {
		t.Fatalf("result = %+v, want ok: email delivery is best-effort", res)
	}
}
