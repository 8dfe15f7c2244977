package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов.
//
// Транзакции реализованы clone-swap: WithinTx клонирует всё состояние,
// выполняет функцию над клоном и подменяет состояние только при успехе.
// Ошибка или panic внутри функции оставляют хранилище нетронутым, что
// даёт честную семантику rollback без внешней БД.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx выполняет fn над клоном состояния и коммитит подменой
// указателя. Транзакции сериализованы: параллельные WithinTx выполняются
// по очереди.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	clone := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&unitOfWork{st: clone}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = clone
	s.mu.Unlock()
	return nil
}

// Orders даёт autocommit-доступ к заказам (сидинг и проверки в тестах).
func (s *Store) Orders() domain.OrderRepository { return &orderRepo{u: s.live()} }

// Products даёт autocommit-доступ к каталогу.
func (s *Store) Products() domain.ProductRepository { return &productRepo{u: s.live()} }

// Ledger даёт autocommit-доступ к ledger обработанных событий.
func (s *Store) Ledger() domain.LedgerRepository { return &ledgerRepo{u: s.live()} }

// Outbox даёт autocommit-доступ к transactional outbox.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepo{u: s.live()} }

// Timeline даёт autocommit-доступ к таймлайну заказов.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepo{u: s.live()} }

func (s *Store) live() *unitOfWork {
	return &unitOfWork{store: s}
}

// unitOfWork связывает репозитории с одним снимком состояния: либо с
// клоном внутри транзакции, либо с живым состоянием Store под RWMutex.
type unitOfWork struct {
	store *Store // nil для транзакционного режима
	st    *state // клон; nil для autocommit-режима
}

func (u *unitOfWork) Orders() domain.OrderRepository      { return &orderRepo{u: u} }
func (u *unitOfWork) Products() domain.ProductRepository  { return &productRepo{u: u} }
func (u *unitOfWork) Ledger() domain.LedgerRepository     { return &ledgerRepo{u: u} }
func (u *unitOfWork) Outbox() domain.OutboxRepository     { return &outboxRepo{u: u} }
func (u *unitOfWork) Timeline() domain.TimelineRepository { return &timelineRepo{u: u} }

// view возвращает состояние для чтения и функцию освобождения.
func (u *unitOfWork) view() (*state, func()) {
	if u.st != nil {
		return u.st, func() {}
	}
	u.store.mu.RLock()
	return u.store.st, u.store.mu.RUnlock
}

// mutate возвращает состояние для записи и функцию освобождения.
func (u *unitOfWork) mutate() (*state, func()) {
	if u.st != nil {
		return u.st, func() {}
	}
	u.store.mu.Lock()
	return u.store.st, u.store.mu.Unlock
}

// state — все таблицы хранилища.
type state struct {
	orders   map[string]domain.Order
	products map[string]domain.Product
	ledger   map[string]domain.ProcessedEvent
	outbox   map[string]outboxRecord
	timeline map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		ledger:   make(map[string]domain.ProcessedEvent),
		outbox:   make(map[string]outboxRecord),
		timeline: make(map[string][]domain.TimelineEvent),
	}
}

func (st *state) clone() *state {
	next := &state{
		orders:   make(map[string]domain.Order, len(st.orders)),
		products: make(map[string]domain.Product, len(st.products)),
		ledger:   make(map[string]domain.ProcessedEvent, len(st.ledger)),
		outbox:   make(map[string]outboxRecord, len(st.outbox)),
		timeline: make(map[string][]domain.TimelineEvent, len(st.timeline)),
	}
	for id, order := range st.orders {
		next.orders[id] = cloneOrder(order)
	}
	for id, product := range st.products {
		next.products[id] = cloneProduct(product)
	}
	for id, entry := range st.ledger {
		next.ledger[id] = cloneProcessedEvent(entry)
	}
	for id, record := range st.outbox {
		record.msg.Payload = append([]byte(nil), record.msg.Payload...)
		next.outbox[id] = record
	}
	for id, events := range st.timeline {
		next.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	return next
}

func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.Metadata = domain.CloneMetadata(item.Metadata)
		items[i] = item
	}
	order.Items = items
	return order
}

func cloneProduct(product domain.Product) domain.Product {
	product.Metadata = domain.CloneMetadata(product.Metadata)
	if product.Stock != nil {
		stock := *product.Stock
		product.Stock = &stock
	}
	return product
}

func cloneProcessedEvent(entry domain.ProcessedEvent) domain.ProcessedEvent {
	entry.Payload = append([]byte(nil), entry.Payload...)
	return entry
}

var (
	_ domain.TxRunner   = (*Store)(nil)
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
