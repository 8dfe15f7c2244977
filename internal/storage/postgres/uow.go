package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// querier покрывает общий набор методов *sql.DB и *sql.Tx, поэтому
// одни и те же репозитории работают и в autocommit-режиме, и внутри
// транзакции UnitOfWork.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type unitOfWork struct {
	q querier
}

func (u *unitOfWork) Orders() domain.OrderRepository     { return &orderRepository{q: u.q} }
func (u *unitOfWork) Products() domain.ProductRepository { return &productRepository{q: u.q} }
func (u *unitOfWork) Ledger() domain.LedgerRepository    { return &ledgerRepository{q: u.q} }
func (u *unitOfWork) Outbox() domain.OutboxRepository    { return &outboxRepository{q: u.q} }
func (u *unitOfWork) Timeline() domain.TimelineRepository {
	return &timelineRepository{q: u.q}
}

// WithinTx открывает транзакцию БД, выполняет fn с привязанными к ней
// репозиториями и коммитит только при fn == nil. Паника внутри fn
// откатывает транзакцию и пробрасывается дальше.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.UnitOfWork) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = dbTx.Rollback()
		}
	}()

	if err := fn(&unitOfWork{q: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	return nil
}

// Репозитории в autocommit-режиме: каждый вызов — отдельная транзакция.
// Используются воркерами (outbox, ledger cleanup), которым не нужна
// общая граница с другими изменениями.

func (s *Store) Orders() domain.OrderRepository     { return &orderRepository{q: s.db} }
func (s *Store) Products() domain.ProductRepository { return &productRepository{q: s.db} }
func (s *Store) Ledger() domain.LedgerRepository    { return &ledgerRepository{q: s.db} }
func (s *Store) Outbox() domain.OutboxRepository    { return &outboxRepository{q: s.db} }
func (s *Store) Timeline() domain.TimelineRepository {
	return &timelineRepository{q: s.db}
}

var (
	_ domain.TxRunner   = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
