package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// SimulatedGateway эмулирует внешний платежный шлюз: часть списаний
// отклоняется (бизнес-отказ), часть падает с транзиентной ошибкой.
// Источник случайности инжектируется для воспроизводимых тестов.
type SimulatedGateway struct {
	declineRate float64
	errorRate   float64
	logger      *log.Entry

	mu   sync.Mutex
	rand func() float64

	captureCalls int
}

// NewSimulatedGateway создает шлюз с заданными долями отказов.
func NewSimulatedGateway(declineRate, errorRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		declineRate: clampRate(declineRate),
		errorRate:   clampRate(errorRate),
		logger:      log.WithField("component", "payment-gateway"),
		rand:        rand.Float64,
	}
}

// WithRandSource подменяет источник случайности (для тестов).
func (g *SimulatedGateway) WithRandSource(fn func() float64) *SimulatedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rand = fn
	return g
}

// Capture списывает сумму заказа. Возвращает ErrPaymentDeclined при
// бизнес-отказе и ErrPaymentTemporary при транзиентной ошибке шлюза.
func (g *SimulatedGateway) Capture(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("capture: order is nil")
	}

	g.mu.Lock()
	g.captureCalls++
	roll := g.rand()
	g.mu.Unlock()

	switch {
	case roll < g.errorRate:
		g.logger.WithField("order_id", order.ID).Warn("payment gateway transient failure")
		return fmt.Errorf("capture %s: %w", order.ID, domain.ErrPaymentTemporary)
	case roll < g.errorRate+g.declineRate:
		g.logger.WithField("order_id", order.ID).Info("payment declined")
		return fmt.Errorf("capture %s: %w", order.ID, domain.ErrPaymentDeclined)
	}

	g.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
	}).Debug("payment captured")
	return nil
}

// CaptureCalls возвращает число обращений к шлюзу.
func (g *SimulatedGateway) CaptureCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captureCalls
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

var _ domain.PaymentGateway = (*SimulatedGateway)(nil)
