package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepo — реализация transactional outbox поверх снимка состояния.
type outboxRepo struct {
	u *unitOfWork
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с ID.
func (r *outboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	st, release := r.u.mutate()
	defer release()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает pending-сообщения в порядке создания, не более limit.
func (r *outboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	st, release := r.u.view()
	defer release()

	records := make([]outboxRecord, 0, len(st.outbox))
	for _, record := range st.outbox {
		if record.status == outboxStatusPending {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].createdAt.Equal(records[j].createdAt) {
			return records[i].createdAt.Before(records[j].createdAt)
		}
		return records[i].msg.ID < records[j].msg.ID
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, record := range records {
		result = append(result, record.msg)
	}
	return result, nil
}

// Stats возвращает размер и возраст pending-backlog.
func (r *outboxRepo) Stats() (domain.OutboxStats, error) {
	st, release := r.u.view()
	defer release()

	stats := domain.OutboxStats{}
	for _, record := range st.outbox {
		if record.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || record.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = record.createdAt
		}
	}
	return stats, nil
}

// MarkSent помечает сообщение как опубликованное.
func (r *outboxRepo) MarkSent(id string) error {
	return r.transition(id, outboxStatusSent)
}

// MarkFailed помечает сообщение как неотправленное после исчерпания retry.
func (r *outboxRepo) MarkFailed(id string) error {
	return r.transition(id, outboxStatusFailed)
}

func (r *outboxRepo) transition(id, status string) error {
	st, release := r.u.mutate()
	defer release()

	record, ok := st.outbox[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	st.outbox[id] = record
	return nil
}

var _ domain.OutboxRepository = (*outboxRepo)(nil)
