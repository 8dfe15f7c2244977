package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
	"github.com/vladislavdragonenkov/ofs/internal/pipeline"
)

const defaultLedgerTTL = 24 * time.Hour

// Метрика result для обработанного события.
const (
	resultProcessed       = "processed"
	resultFailed          = "failed"
	resultPendingApproval = "pending_approval"
	resultDuplicate       = "duplicate"
	resultSkipped         = "skipped"
	resultInternalError   = "internal_error"
	resultError           = "error"
)

// Service обрабатывает события создания заказа: один вызов Handle —
// одна атомарная обработка одного события.
//
// Дедупликация строится на условной вставке в ledger: вставка выполняется
// первой и коммитится в одной транзакции со всеми эффектами, поэтому
// at-least-once доставка даёт effectively-once обработку. Бизнес-отказ
// фазы Process откатывает транзакцию целиком и фиксирует итог (статус,
// ledger, исходящее событие) во второй, чистой транзакции: частичных
// списаний остатков не бывает.
type Service struct {
	runner  domain.TxRunner
	pipe    *pipeline.Pipeline
	logger  *log.Entry
	metrics *metrics.LifecycleMetrics

	ledgerTTL time.Duration
	now       func() time.Time
}

// NewService создает consumer жизненного цикла заказов.
// metrics может быть nil (для тестов), ledgerTTL <= 0 — TTL по умолчанию.
func NewService(runner domain.TxRunner, pipe *pipeline.Pipeline, m *metrics.LifecycleMetrics, ledgerTTL time.Duration) *Service {
	if ledgerTTL <= 0 {
		ledgerTTL = defaultLedgerTTL
	}
	return &Service{
		runner:    runner,
		pipe:      pipe,
		logger:    log.WithField("component", "lifecycle-consumer"),
		metrics:   m,
		ledgerTTL: ledgerTTL,
		now:       time.Now,
	}
}

// HandleMessage — kafka.MessageHandler поверх Handle. Ошибка парсинга
// возвращается как есть: после исчерпания retry сообщение уйдет в DLQ.
func (s *Service) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.ParseOrderCreatedEvent(message)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("rejected malformed order event")
		return err
	}
	return s.Handle(ctx, event)
}

// Handle обрабатывает одно событие создания заказа.
// Возврат nil означает, что событие можно подтверждать (ack): его итог
// зафиксирован либо обработка корректно пропущена. Ошибка оставляет
// сообщение неподтвержденным для повторной доставки.
func (s *Service) Handle(ctx context.Context, event *kafka.OrderCreatedEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	ctx = domain.WithCorrelationID(ctx, event.CorrelationID)

	if s.metrics != nil {
		s.metrics.RecordInFlightStarted()
		defer s.metrics.RecordInFlightFinished()
	}
	start := s.now()

	result, err := s.handle(ctx, event)

	if s.metrics != nil {
		s.metrics.RecordHandleDuration(s.now().Sub(start))
		s.metrics.RecordEvent(result)
		if result == resultDuplicate {
			s.metrics.RecordDuplicate()
		}
	}
	return err
}

// processRejectedError откатывает транзакцию обработки, вынося бизнес-итог
// наружу: эффекты Process (списания остатков) не должны пережить отказ.
type processRejectedError struct {
	result domain.Result
}

func (e *processRejectedError) Error() string {
	return fmt.Sprintf("process rejected: %s %v", e.result.Outcome, e.result.CodeStrings())
}

func (s *Service) handle(ctx context.Context, event *kafka.OrderCreatedEvent) (string, error) {
	logger := s.logger.WithFields(log.Fields{
		"event_id": event.EventID,
		"order_id": event.OrderID,
	})

	var (
		duplicate bool
		skipped   bool
		final     domain.OrderStatus
	)

	err := s.runTx(ctx, func(tx domain.UnitOfWork) error {
		inserted, err := s.insertLedger(tx, event)
		if err != nil {
			return fmt.Errorf("ledger insert: %w", err)
		}
		if !inserted {
			duplicate = true
			return nil
		}

		order, err := tx.Orders().Get(event.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Фиксируем только ledger-запись: повторная доставка
			// того же события больше ничего не сделает.
			skipped = true
			logger.Warn("order not found, event recorded and skipped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}

		if order.Status != domain.OrderStatusPending {
			skipped = true
			logger.WithField("status", order.Status).Info("order is not pending, event skipped")
			return tx.Ledger().MarkResult(event.EventID, order.Status)
		}

		res, err := s.pipe.Validate(ctx, tx, &order)
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		if !res.IsOK() {
			// Валидация эффектов не имеет: итог можно фиксировать
			// в этой же транзакции.
			final = statusFor(res)
			return s.finalize(ctx, tx, &order, final, res, event)
		}

		res, err = s.pipe.Process(ctx, tx, &order)
		if err != nil {
			return fmt.Errorf("process: %w", err)
		}
		if !res.IsOK() {
			return &processRejectedError{result: res}
		}

		final = domain.OrderStatusProcessed
		return s.finalize(ctx, tx, &order, final, domain.OK(), event)
	})

	if err == nil {
		switch {
		case duplicate:
			logger.Info("duplicate event skipped")
			return resultDuplicate, nil
		case skipped:
			return resultSkipped, nil
		default:
			return labelFor(final), nil
		}
	}

	var rejected *processRejectedError
	if errors.As(err, &rejected) {
		final = statusFor(rejected.result)
		if recErr := s.record(ctx, event, final, rejected.result); recErr != nil {
			logger.WithError(recErr).Error("failed to record process rejection")
			return resultError, recErr
		}
		return labelFor(final), nil
	}

	// Инфраструктурный сбой или panic: заказ уходит в failed с
	// INTERNAL_ERROR в чистой транзакции. Событие подтверждается —
	// его итог зафиксирован, повторная доставка не нужна.
	logger.WithError(err).Error("event handling failed")
	internal := domain.Fail(domain.CodeInternalError)
	if recErr := s.record(ctx, event, domain.OrderStatusFailed, internal); recErr != nil {
		logger.WithError(recErr).Error("failed to record internal error outcome")
		return resultError, fmt.Errorf("record internal error outcome: %w", recErr)
	}
	return resultInternalError, nil
}

// runTx выполняет fn в транзакции, превращая panic хендлеров в ошибку.
func (s *Service) runTx(ctx context.Context, fn func(tx domain.UnitOfWork) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.runner.WithinTx(ctx, fn)
}

func (s *Service) insertLedger(tx domain.UnitOfWork, event *kafka.OrderCreatedEvent) (bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}

	now := s.now().UTC()
	_, inserted, err := tx.Ledger().Insert(domain.ProcessedEvent{
		EventID:    event.EventID,
		OrderID:    event.OrderID,
		EventType:  event.EventType,
		Payload:    payload,
		TTLAt:      now.Add(s.ledgerTTL),
		InsertedAt: now,
	})
	return inserted, err
}

// record фиксирует итог обработки во второй, чистой транзакции:
// используется после отката эффектов Process и при внутренних сбоях.
func (s *Service) record(ctx context.Context, event *kafka.OrderCreatedEvent, status domain.OrderStatus, res domain.Result) error {
	return s.runner.WithinTx(ctx, func(tx domain.UnitOfWork) error {
		// После отката первой транзакции ledger-записи нет. Существующая
		// запись означает, что итог события уже закоммичен раньше —
		// пересматривать его и публиковать второе событие нельзя.
		inserted, err := s.insertLedger(tx, event)
		if err != nil {
			return fmt.Errorf("ledger insert: %w", err)
		}
		if !inserted {
			return nil
		}

		order, err := tx.Orders().Get(event.OrderID)
		if err != nil {
			if domain.IsNotFound(err) {
				return tx.Ledger().MarkResult(event.EventID, status)
			}
			return fmt.Errorf("load order: %w", err)
		}

		// Итог навязывается только pending-заказу: терминальный статус,
		// выставленный другим событием, остается как есть.
		if order.Status != domain.OrderStatusPending {
			return tx.Ledger().MarkResult(event.EventID, order.Status)
		}

		return s.finalize(ctx, tx, &order, status, res, event)
	})
}

// finalize атомарно закрепляет итог: статус заказа, отметку в ledger,
// исходящее событие в outbox и запись в таймлайн — всё в переданной tx.
func (s *Service) finalize(ctx context.Context, tx domain.UnitOfWork, order *domain.Order, status domain.OrderStatus, res domain.Result, event *kafka.OrderCreatedEvent) error {
	now := s.now().UTC()
	order.Status = status
	order.UpdatedAt = now

	if err := tx.Orders().Save(*order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if err := tx.Ledger().MarkResult(event.EventID, status); err != nil {
		return fmt.Errorf("mark ledger result: %w", err)
	}

	out := kafka.NewOrderLifecycleEvent(order, eventTypeFor(status), res.CodeStrings(), domain.CorrelationIDFrom(ctx))
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outbound event: %w", err)
	}
	if _, err := tx.Outbox().Enqueue(domain.OutboxMessage{
		ID:            out.EventID,
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     out.EventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue outbound event: %w", err)
	}

	if err := tx.Timeline().Append(domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     out.EventType,
		Reason:   strings.Join(res.CodeStrings(), ","),
		Occurred: now,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"event_id": event.EventID,
		"order_id": order.ID,
		"status":   status,
		"codes":    res.CodeStrings(),
	}).Info("order lifecycle event handled")
	return nil
}

func statusFor(res domain.Result) domain.OrderStatus {
	if res.NeedsReview() {
		return domain.OrderStatusPendingApproval
	}
	return domain.OrderStatusFailed
}

func labelFor(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusProcessed:
		return resultProcessed
	case domain.OrderStatusPendingApproval:
		return resultPendingApproval
	default:
		return resultFailed
	}
}

func eventTypeFor(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusProcessed:
		return kafka.EventTypeOrderProcessed
	case domain.OrderStatusPendingApproval:
		return kafka.EventTypeOrderPendingApproval
	default:
		return kafka.EventTypeOrderFailed
	}
}
