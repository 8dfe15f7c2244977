package postgres

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

func TestProductRepository_PostgresCreateGetAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	product := sampleProduct("prod-1", domain.CategoryPhysical, int32ref(10), map[string]any{
		domain.MetaWarehouse: "GRU-1",
	})
	if err := repo.Create(product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	got, err := repo.Get(product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Category != domain.CategoryPhysical || !got.Active {
		t.Fatalf("unexpected product payload: %+v", got)
	}
	if !got.StockTracked() || got.StockAvailable() != 10 {
		t.Fatalf("expected tracked stock 10, got %+v", got.Stock)
	}
	if wh := domain.MetaString(got.Metadata, domain.MetaWarehouse); wh != "GRU-1" {
		t.Fatalf("expected metadata round-trip, got %+v", got.Metadata)
	}

	got.DecrementStock(3)
	if err := repo.Save(got); err != nil {
		t.Fatalf("save product: %v", err)
	}

	saved, err := repo.Get(product.ID)
	if err != nil {
		t.Fatalf("get saved product: %v", err)
	}
	if saved.StockAvailable() != 7 {
		t.Fatalf("expected stock 7 after decrement, got %d", saved.StockAvailable())
	}
	if saved.Version != got.Version+1 {
		t.Fatalf("expected version bump, got %d", saved.Version)
	}

	// Stale save must be rejected.
	if err := repo.Save(got); !errors.Is(err, domain.ErrProductVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestProductRepository_PostgresUntrackedStockAndMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	digital := sampleProduct("prod-digital", domain.CategoryDigital, nil, nil)
	if err := repo.Create(digital); err != nil {
		t.Fatalf("create digital product: %v", err)
	}

	got, err := repo.Get(digital.ID)
	if err != nil {
		t.Fatalf("get digital product: %v", err)
	}
	if got.StockTracked() {
		t.Fatalf("expected untracked stock, got %+v", got.Stock)
	}

	if _, err := repo.Get("missing-product"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	missing := got
	missing.ID = "missing-product"
	if err := repo.Save(missing); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on save, got %v", err)
	}
}
