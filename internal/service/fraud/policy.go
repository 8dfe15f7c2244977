package fraud

import (
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Policy помечает подозрительные заказы: всё, что дороже порога,
// с заданной вероятностью уходит на ручную проверку. Источник
// случайности инжектируется, чтобы тесты были воспроизводимы.
type Policy struct {
	thresholdMinor int64
	probability    float64
	logger         *log.Entry

	mu   sync.Mutex
	rand func() float64
}

// NewPolicy создает политику fraud-проверки.
// probability вне [0,1] обрезается до границ диапазона.
func NewPolicy(thresholdMinor int64, probability float64) *Policy {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return &Policy{
		thresholdMinor: thresholdMinor,
		probability:    probability,
		logger:         log.WithField("component", "fraud-policy"),
		rand:           rand.Float64,
	}
}

// WithRandSource подменяет источник случайности (для тестов).
func (p *Policy) WithRandSource(fn func() float64) *Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rand = fn
	return p
}

// Flagged возвращает true, если заказ требует ручной fraud-проверки.
func (p *Policy) Flagged(order *domain.Order) bool {
	if order == nil || order.AmountMinor <= p.thresholdMinor {
		return false
	}

	p.mu.Lock()
	roll := p.rand()
	p.mu.Unlock()

	flagged := roll < p.probability
	if flagged {
		p.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"amount_minor": order.AmountMinor,
		}).Warn("order flagged for fraud review")
	}
	return flagged
}

var _ domain.FraudChecker = (*Policy)(nil)
