package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type ledgerRepository struct {
	q querier
}

// NewLedgerRepository создаёт PostgreSQL-реализацию LedgerRepository
// в autocommit-режиме.
func NewLedgerRepository(store *Store) domain.LedgerRepository {
	return &ledgerRepository{q: store.DB()}
}

// Insert выполняет условную вставку через ON CONFLICT DO NOTHING:
// гонка двух консьюмеров за один event_id разрешается на стороне БД,
// проигравший получает inserted=false и существующую запись.
func (r *ledgerRepository) Insert(entry domain.ProcessedEvent) (domain.ProcessedEvent, bool, error) {
	entry.EventID = strings.TrimSpace(entry.EventID)
	if entry.EventID == "" {
		return domain.ProcessedEvent{}, false, domain.ErrEventIDRequired
	}

	now := time.Now().UTC()
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = now
	}
	if entry.TTLAt.IsZero() {
		entry.TTLAt = now.Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, order_id, event_type, result_status, payload, ttl_at, inserted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (event_id) DO NOTHING
	`,
		entry.EventID,
		entry.OrderID,
		entry.EventType,
		nullableStatus(entry.ResultStatus),
		entry.Payload,
		entry.TTLAt,
		entry.InsertedAt,
	)
	if err != nil {
		return domain.ProcessedEvent{}, false, fmt.Errorf("insert processed event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ProcessedEvent{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := r.Get(entry.EventID)
		if err != nil {
			return domain.ProcessedEvent{}, false, err
		}
		return existing, false, nil
	}

	return entry, true, nil
}

func (r *ledgerRepository) MarkResult(eventID string, status domain.OrderStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE processed_events SET result_status = $2 WHERE event_id = $1
	`, eventID, string(status))
	if err != nil {
		return fmt.Errorf("mark processed event result: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrEventNotFound
	}

	return nil
}

func (r *ledgerRepository) Get(eventID string) (domain.ProcessedEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		entry  domain.ProcessedEvent
		status sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT event_id, order_id, event_type, result_status, payload, ttl_at, inserted_at
		FROM processed_events
		WHERE event_id = $1
	`, eventID).Scan(
		&entry.EventID, &entry.OrderID, &entry.EventType, &status,
		&entry.Payload, &entry.TTLAt, &entry.InsertedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessedEvent{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.ProcessedEvent{}, fmt.Errorf("select processed event: %w", err)
	}
	if status.Valid {
		entry.ResultStatus = domain.OrderStatus(status.String)
	}

	return entry, nil
}

func (r *ledgerRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		DELETE FROM processed_events
		WHERE event_id IN (
			SELECT event_id FROM processed_events
			WHERE ttl_at <= $1
			ORDER BY ttl_at ASC
	`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	query += ")"

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired processed events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

func nullableStatus(status domain.OrderStatus) sql.NullString {
	if status == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(status), Valid: true}
}

var _ domain.LedgerRepository = (*ledgerRepository)(nil)
