package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

func TestLedgerRepository_PostgresConditionalInsert(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewLedgerRepository(store)

	entry := domain.ProcessedEvent{
		EventID:   "evt-1",
		OrderID:   "order-1",
		EventType: "order.created",
		Payload:   []byte(`{"event_id":"evt-1"}`),
		TTLAt:     time.Now().UTC().Add(time.Hour),
	}

	first, inserted, err := repo.Insert(entry)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to win")
	}
	if first.InsertedAt.IsZero() {
		t.Fatal("expected inserted_at to be set")
	}

	if err := repo.MarkResult(entry.EventID, domain.OrderStatusProcessed); err != nil {
		t.Fatalf("mark result: %v", err)
	}

	second, inserted, err := repo.Insert(entry)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("expected second insert to lose")
	}
	if second.ResultStatus != domain.OrderStatusProcessed {
		t.Fatalf("expected existing entry with result status, got %+v", second)
	}

	if _, _, err := repo.Insert(domain.ProcessedEvent{OrderID: "order-1"}); !errors.Is(err, domain.ErrEventIDRequired) {
		t.Fatalf("expected ErrEventIDRequired, got %v", err)
	}
}

func TestLedgerRepository_PostgresMarkResultAndGetMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewLedgerRepository(store)

	if err := repo.MarkResult("missing-event", domain.OrderStatusFailed); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound on mark, got %v", err)
	}
	if _, err := repo.Get("missing-event"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound on get, got %v", err)
	}
}

func TestLedgerRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewLedgerRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	for i, ttl := range []time.Time{
		now.Add(-2 * time.Hour),
		now.Add(-time.Hour),
		now.Add(time.Hour),
	} {
		if _, _, err := repo.Insert(domain.ProcessedEvent{
			EventID:   "evt-ttl-" + string(rune('a'+i)),
			OrderID:   "order-1",
			EventType: "order.created",
			TTLAt:     ttl,
		}); err != nil {
			t.Fatalf("insert entry %d: %v", i, err)
		}
	}

	deleted, err := repo.DeleteExpired(now, 1)
	if err != nil {
		t.Fatalf("delete expired with limit: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	deleted, err = repo.DeleteExpired(now, 0)
	if err != nil {
		t.Fatalf("delete expired without limit: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 more deleted, got %d", deleted)
	}

	if _, err := repo.Get("evt-ttl-c"); err != nil {
		t.Fatalf("live entry should survive cleanup: %v", err)
	}
}
