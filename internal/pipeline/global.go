package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// PendingGuard требует, чтобы заказ находился в стартовом статусе pending.
type PendingGuard struct{}

// NewPendingGuard создаёт правило стартового статуса.
func NewPendingGuard() *PendingGuard {
	return &PendingGuard{}
}

// Name идентифицирует правило в логах.
func (g *PendingGuard) Name() string { return "pending-guard" }

// Validate пропускает только заказы в статусе pending.
func (g *PendingGuard) Validate(_ context.Context, _ domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	if order.Status != domain.OrderStatusPending {
		return domain.Fail(domain.CodeInvalidOrderState), nil
	}
	return domain.OK(), nil
}

// Process повторяет проверку: статус мутирует только consumer после pipeline.
func (g *PendingGuard) Process(ctx context.Context, tx domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	return g.Validate(ctx, tx, order)
}

// HighValueReview отправляет дорогие заказы на ручную проверку.
type HighValueReview struct {
	thresholdMinor int64
}

// NewHighValueReview создаёт правило ручной проверки дорогих заказов.
func NewHighValueReview(thresholdMinor int64) *HighValueReview {
	return &HighValueReview{thresholdMinor: thresholdMinor}
}

// Name идентифицирует правило в логах.
func (g *HighValueReview) Name() string { return "high-value-review" }

// Validate помечает заказ выше порога как требующий ручной проверки.
func (g *HighValueReview) Validate(_ context.Context, _ domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	if g.thresholdMinor > 0 && order.AmountMinor > g.thresholdMinor {
		return domain.ReviewRequired(), nil
	}
	return domain.OK(), nil
}

// Process не повторяет проверку: порог уже оценён на фазе validate.
func (g *HighValueReview) Process(_ context.Context, _ domain.UnitOfWork, _ *domain.Order) (domain.Result, error) {
	return domain.OK(), nil
}

// FraudPayment объединяет антифрод-проверку (validate) и списание оплаты (process).
type FraudPayment struct {
	fraud    domain.FraudChecker
	payments domain.PaymentGateway
	logger   *log.Entry
}

// NewFraudPayment создаёт правило антифрода и оплаты.
func NewFraudPayment(fraud domain.FraudChecker, payments domain.PaymentGateway, logger *log.Entry) *FraudPayment {
	if logger == nil {
		logger = log.WithField("component", "fraud-payment")
	}
	return &FraudPayment{fraud: fraud, payments: payments, logger: logger}
}

// Name идентифицирует правило в логах.
func (g *FraudPayment) Name() string { return "fraud-payment" }

// Validate консультируется с антифрод-политикой; флаг — ручная проверка.
func (g *FraudPayment) Validate(_ context.Context, _ domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	if g.fraud != nil && g.fraud.Flagged(order) {
		g.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"amount_minor": order.AmountMinor,
		}).Warn("order flagged for fraud review")
		return domain.ReviewRequired(domain.CodeFraudDetected), nil
	}
	return domain.OK(), nil
}

// Process выполняет списание оплаты. Отказ провайдера — бизнес-ошибка
// PAYMENT_FAILED; прочие ошибки инфраструктурные.
func (g *FraudPayment) Process(ctx context.Context, _ domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	if g.payments == nil {
		return domain.OK(), nil
	}
	if err := g.payments.Capture(ctx, order); err != nil {
		if errors.Is(err, domain.ErrPaymentDeclined) {
			return domain.Fail(domain.CodePaymentFailed), nil
		}
		return domain.Result{}, fmt.Errorf("capture payment: %w", err)
	}
	return domain.OK(), nil
}

// DefaultGlobalHandlers возвращает глобальные правила в порядке,
// определённом бизнес-процессом: стартовый статус, порог ручной проверки,
// антифрод и оплата. Порядок значим.
func DefaultGlobalHandlers(highValueThresholdMinor int64, fraud domain.FraudChecker, payments domain.PaymentGateway, logger *log.Entry) []OrderHandler {
	return []OrderHandler{
		NewPendingGuard(),
		NewHighValueReview(highValueThresholdMinor),
		NewFraudPayment(fraud, payments, logger),
	}
}

var (
	_ OrderHandler = (*PendingGuard)(nil)
	_ OrderHandler = (*HighValueReview)(nil)
	_ OrderHandler = (*FraudPayment)(nil)
)
