package memory

import (
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// ledgerRepo — реализация LedgerRepository поверх снимка состояния.
type ledgerRepo struct {
	u *unitOfWork
}

// Insert выполняет условную вставку: существующая запись возвращается
// с inserted=false без ошибки.
func (r *ledgerRepo) Insert(entry domain.ProcessedEvent) (domain.ProcessedEvent, bool, error) {
	if entry.EventID == "" {
		return domain.ProcessedEvent{}, false, domain.ErrEventIDRequired
	}

	st, release := r.u.mutate()
	defer release()

	if existing, ok := st.ledger[entry.EventID]; ok {
		return cloneProcessedEvent(existing), false, nil
	}

	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now().UTC()
	}
	st.ledger[entry.EventID] = cloneProcessedEvent(entry)
	return entry, true, nil
}

// MarkResult фиксирует итоговый статус заказа в существующей записи.
func (r *ledgerRepo) MarkResult(eventID string, status domain.OrderStatus) error {
	st, release := r.u.mutate()
	defer release()

	entry, ok := st.ledger[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	entry.ResultStatus = status
	st.ledger[eventID] = entry
	return nil
}

// Get возвращает запись ledger или ErrEventNotFound.
func (r *ledgerRepo) Get(eventID string) (domain.ProcessedEvent, error) {
	st, release := r.u.view()
	defer release()

	entry, ok := st.ledger[eventID]
	if !ok {
		return domain.ProcessedEvent{}, domain.ErrEventNotFound
	}
	return cloneProcessedEvent(entry), nil
}

// DeleteExpired удаляет записи с ttl_at <= before, не более limit за вызов.
func (r *ledgerRepo) DeleteExpired(before time.Time, limit int) (int, error) {
	st, release := r.u.mutate()
	defer release()

	deleted := 0
	for id, entry := range st.ledger {
		if limit > 0 && deleted >= limit {
			break
		}
		if entry.TTLAt.IsZero() || entry.TTLAt.After(before) {
			continue
		}
		delete(st.ledger, id)
		deleted++
	}
	return deleted, nil
}

var _ domain.LedgerRepository = (*ledgerRepo)(nil)
