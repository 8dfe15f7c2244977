package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// BreakerGateway оборачивает платежный шлюз в circuit breaker:
// после серии транзиентных сбоев запросы к шлюзу прекращаются до
// восстановления. Бизнес-отказы (decline) сбоями не считаются и
// breaker не открывают.
type BreakerGateway struct {
	next    domain.PaymentGateway
	breaker *gobreaker.CircuitBreaker
	logger  *log.Entry
}

// NewBreakerGateway создает декоратор с настройками по умолчанию:
// breaker открывается после 60% сбоев при минимум 3 запросах,
// half-open через 30 секунд.
func NewBreakerGateway(next domain.PaymentGateway) *BreakerGateway {
	logger := log.WithField("component", "payment-breaker")

	settings := gobreaker.Settings{
		Name:        "payment-capture",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Decline — ответ шлюза, а не его недоступность.
			return err == nil || errors.Is(err, domain.ErrPaymentDeclined)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("payment circuit breaker state changed")
		},
	}

	return &BreakerGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Capture проводит списание через breaker. При открытом breaker
// возвращается транзиентная ошибка: событие уйдет в retry/DLQ.
func (g *BreakerGateway) Capture(ctx context.Context, order *domain.Order) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.Capture(ctx, order)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("payment gateway unavailable: %w", domain.ErrPaymentTemporary)
	}
	return err
}

// State возвращает текущее состояние breaker (для health-чеков).
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}

var _ domain.PaymentGateway = (*BreakerGateway)(nil)
