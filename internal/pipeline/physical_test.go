package pipeline

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/service/delivery"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

func int32ptr(v int32) *int32 { return &v }

func physicalFixtures(stock *int32, active bool) (domain.Product, domain.OrderItem, domain.Order) {
	product := domain.Product{
		ID:       "prod-1",
		Category: domain.CategoryPhysical,
		Stock:    stock,
		Active:   active,
	}
	item := domain.OrderItem{
		ID:        "item-1",
		ProductID: product.ID,
		Qty:       2,
		Metadata:  map[string]any{domain.MetaWarehouse: "SP"},
	}
	order := domain.Order{ID: "ord-1", Status: domain.OrderStatusPending, Items: []domain.OrderItem{item}}
	return product, item, order
}

func TestPhysicalValidate(t *testing.T) {
	handler := NewPhysicalHandler(delivery.NewCalculator(), nil, nil)
	store := memory.NewStore()

	tests := []struct {
		name     string
		mutate   func(product *domain.Product, item *domain.OrderItem)
		wantOK   bool
		wantCode domain.ErrorCode
	}{
		{
			name:   "happy path",
			mutate: func(*domain.Product, *domain.OrderItem) {},
			wantOK: true,
		},
		{
			name: "missing warehouse",
			mutate: func(_ *domain.Product, item *domain.OrderItem) {
				delete(item.Metadata, domain.MetaWarehouse)
			},
			wantCode: domain.CodeWarehouseUnavailable,
		},
		{
			name: "unknown warehouse",
			mutate: func(_ *domain.Product, item *domain.OrderItem) {
				item.Metadata[domain.MetaWarehouse] = "XX"
			},
			wantCode: domain.CodeWarehouseUnavailable,
		},
		{
			name: "inactive product",
			mutate: func(product *domain.Product, _ *domain.OrderItem) {
				product.Active = false
			},
			wantCode: domain.CodeOutOfStock,
		},
		{
			name: "insufficient stock",
			mutate: func(product *domain.Product, _ *domain.OrderItem) {
				product.Stock = int32ptr(1)
			},
			wantCode: domain.CodeOutOfStock,
		},
		{
			name: "untracked stock passes",
			mutate: func(product *domain.Product, _ *domain.OrderItem) {
				product.Stock = nil
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, item, order := physicalFixtures(int32ptr(10), true)
			tt.mutate(&product, &item)

			res, err := handler.Validate(context.Background(), store, &item, &product, &order)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if tt.wantOK != res.IsOK() {
				t.Fatalf("ok = %v, want %v (res=%+v)", res.IsOK(), tt.wantOK, res)
			}
			if !tt.wantOK && res.Codes[0] != tt.wantCode {
				t.Fatalf("code = %s, want %s", res.Codes[0], tt.wantCode)
			}
		})
	}
}

func TestPhysicalProcessDecrementsStockAndSetsDeliveryDays(t *testing.T) {
	handler := NewPhysicalHandler(delivery.NewCalculator(), nil, nil)
	store := memory.NewStore()

	product, item, order := physicalFixtures(int32ptr(10), true)
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

	saved, _ := store.Products().Get(product.ID)
	if *saved.Stock != 8 {
		t.Errorf("stock = %d, want 8", *saved.Stock)
	}
	if days, ok := domain.MetaInt64(item.Metadata, domain.MetaDeliveryDays); !ok || days != 5 {
		t.Errorf("delivery days = %d (ok=%v), want 5 for SP", days, ok)
	}

	// Остаток 8 выше порога — алерта быть не должно.
	pending, _ := store.Outbox().PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("outbox = %+v, want empty", pending)
	}
}

func TestPhysicalProcessEmitsLowStockAlert(t *testing.T) {
	handler := NewPhysicalHandler(delivery.NewCalculator(), nil, nil)
	store := memory.NewStore()

	product, item, order := physicalFixtures(int32ptr(6), true)
	if err := store.Products().Create(product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	product, _ = store.Products().Get(product.ID)

	if _, err := handler.Process(context.Background(), store, &item, &product, &order); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Остаток упал до 4 < 5: в outbox должен лежать stock.low.
	pending, _ := store.Outbox().PullPending(10)
	if len(pending) != 1 || pending[0].EventType != kafka.EventTypeLowStock {
		t.Fatalf("outbox = %+v, want one stock.low", pending)
	}
	if pending[0].AggregateID != product.ID {
		t.Errorf("aggregate id = %q, want %q", pending[0].AggregateID, product.ID)
	}
}

func TestPhysicalProcessFailsWhenStockRacedAway(t *testing.T) {
	handler := NewPhysicalHandler(delivery.NewCalculator(), nil, nil)
	store := memory.NewStore()

	product, item, order := physicalFixtures(int32ptr(1), true)

	res, err := handler.Process(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.IsFailed() || res.Codes[0] != domain.CodeOutOfStock {
		t.Fatalf("result = %+v, want OUT_OF_STOCK", res)
	}
}
