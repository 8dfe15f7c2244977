package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/service/delivery"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

var preorderNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func preorderHandler() *PreorderHandler {
	handler := NewPreorderHandler(delivery.NewCalculator(), nil)
	handler.now = func() time.Time { return preorderNow }
	return handler
}

func preorderFixtures(release string, stock *int32) (domain.Product, domain.OrderItem, domain.Order) {
	product := domain.Product{
		ID:       "prod-1",
		Category: domain.CategoryPreorder,
		Stock:    stock,
		Active:   true,
		Metadata: map[string]any{domain.MetaReleaseDate: release},
	}
	item := domain.OrderItem{ID: "i1", ProductID: product.ID, Qty: 2, PriceMinor: 1000}
	order := domain.Order{ID: "ord-1", Status: domain.OrderStatusPending, Items: []domain.OrderItem{item}}
	return product, item, order
}

func TestPreorderValidate(t *testing.T) {
	handler := preorderHandler()
	store := memory.NewStore()

	tests := []struct {
		name     string
		release  string
		stock    *int32
		wantOK   bool
		wantCode domain.ErrorCode
	}{
		{name: "future release", release: "2026-09-01", wantOK: true},
		{name: "rfc3339 release", release: "2026-09-01T10:00:00Z", wantOK: true},
		{name: "garbage date", release: "next год", wantCode: domain.CodeInvalidReleaseDate},
		{name: "missing date", release: "", wantCode: domain.CodeInvalidReleaseDate},
		{name: "release passed", release: "2026-01-01", wantCode: domain.CodeReleaseDatePassed},
		{name: "sold out", release: "2026-09-01", stock: int32ptr(1), wantCode: domain.CodePreorderSoldOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, item, order := preorderFixtures(tt.release, tt.stock)

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

func TestPreorderProcessNormalizesDatesAndAppliesDiscount(t *testing.T) {
	handler := preorderHandler()
	store := memory.NewStore()

	product, item, order := preorderFixtures("2026-09-10T08:30:00Z", nil)
	product.Metadata[domain.MetaPreorderDiscountMinor] = int64(300)
	item.Metadata = map[string]any{domain.MetaWarehouse: "RJ"}

	res, err := handler.Process(context.Background(), store, &item, &product, &order)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.IsOK() {
		t.Fatalf("result = %+v, want ok", res)
	}

	if got := domain.MetaString(item.Metadata, domain.MetaReleaseDate); got != "2026-09-10" {
		t.Errorf("release date = %q, want 2026-09-10", got)
	}
	if got := domain.MetaString(item.Metadata, domain.MetaMaxCancellationDate); got != "2026-09-03" {
		t.Errorf("max cancellation date = %q, want 2026-09-03", got)
	}
	if days, ok := domain.MetaInt64(item.Metadata, domain.MetaDeliveryDays); !ok || days != 7 {
		t.Errorf("delivery days = %d (ok=%v), want 7 for RJ", days, ok)
	}
	if item.PriceMinor != 700 {
		t.Errorf("price = %d, want 700 after discount", item.PriceMinor)
	}
	if discount, ok := domain.MetaInt64(item.Metadata, domain.MetaPreorderDiscountMinor); !ok || discount != 300 {
		t.Errorf("recorded discount = %d (ok=%v), want 300", discount, ok)
	}
}

func TestPreorderProcessClampsDiscountToPrice(t *testing.T) {
	handler := preorderHandler()
	store := memory.NewStore()

	product, item, order := preorderFixtures("2026-09-10", nil)
	product.Metadata[domain.MetaPreorderDiscountMinor] = int64(5000)

	if _, err := handler.Process(context.Background(), store, &item, &product, &order); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if item.PriceMinor != 0 {
		t.Errorf("price = %d, want 0: discount clamps to snapshot price", item.PriceMinor)
	}
	if discount, _ := domain.MetaInt64(item.Metadata, domain.MetaPreorderDiscountMinor); discount != 1000 {
		t.Errorf("recorded discount = %d, want clamped 1000", discount)
	}
}
