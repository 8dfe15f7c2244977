package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
)

// Pipeline диспетчеризует item-хендлеры и глобальные правила заказа.
//
// Обе фазы обходят позиции в порядке списка и останавливаются на первом
// не-ok результате (fail-fast): глобальные правила выполняются только после
// того, как каждая позиция вернула ok. Process дополнительно применяет
// побочные эффекты внутри переданной транзакции.
type Pipeline struct {
	registry *Registry
	globals  []OrderHandler
	logger   *log.Entry
	metrics  *metrics.PipelineMetrics
}

// New создаёт pipeline с реестром item-хендлеров и упорядоченным списком
// глобальных правил. metrics может быть nil (для тестов).
func New(registry *Registry, globals []OrderHandler, logger *log.Entry, m *metrics.PipelineMetrics) *Pipeline {
	if logger == nil {
		logger = log.WithField("component", "pipeline")
	}
	return &Pipeline{
		registry: registry,
		globals:  globals,
		logger:   logger,
		metrics:  m,
	}
}

// Registry возвращает реестр категорийных хендлеров.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Validate прогоняет валидацию всех позиций, затем глобальных правил.
// Возвращает ok только если каждое правило вернуло ok.
func (p *Pipeline) Validate(ctx context.Context, tx domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	start := time.Now()
	res, err := p.run(ctx, tx, order, phaseValidate)
	if p.metrics != nil {
		p.metrics.RecordPhaseDuration(string(phaseValidate), time.Since(start))
		if err == nil {
			p.metrics.RecordValidateOutcome(string(res.Outcome))
		}
	}
	return res, err
}

// Process прогоняет обработку всех позиций, затем глобальных правил,
// применяя побочные эффекты. Правило обхода и fail-fast те же, что у Validate.
func (p *Pipeline) Process(ctx context.Context, tx domain.UnitOfWork, order *domain.Order) (domain.Result, error) {
	start := time.Now()
	res, err := p.run(ctx, tx, order, phaseProcess)
	if p.metrics != nil {
		p.metrics.RecordPhaseDuration(string(phaseProcess), time.Since(start))
		if err == nil {
			p.metrics.RecordProcessOutcome(string(res.Outcome))
		}
	}
	return res, err
}

type phase string

const (
	phaseValidate phase = "validate"
	phaseProcess  phase = "process"
)

func (p *Pipeline) run(ctx context.Context, tx domain.UnitOfWork, order *domain.Order, ph phase) (domain.Result, error) {
	for i := range order.Items {
		item := &order.Items[i]

		product, err := tx.Products().Get(item.ProductID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("resolve product %s: %w", item.ProductID, err)
		}

		handler, err := p.registry.Resolve(product.Category)
		if err != nil {
			return domain.Result{}, fmt.Errorf("resolve handler for item %s: %w", item.ID, err)
		}

		var res domain.Result
		switch ph {
		case phaseValidate:
			res, err = handler.Validate(ctx, tx, item, &product, order)
		case phaseProcess:
			res, err = handler.Process(ctx, tx, item, &product, order)
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s item %s: %w", ph, item.ID, err)
		}
		if !res.IsOK() {
			p.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"item_id":  item.ID,
				"category": product.Category,
				"phase":    ph,
				"outcome":  res.Outcome,
				"codes":    res.CodeStrings(),
			}).Info("pipeline short-circuited on item")
			return res, nil
		}
	}

	for _, handler := range p.globals {
		var (
			res domain.Result
			err error
		)
		switch ph {
		case phaseValidate:
			res, err = handler.Validate(ctx, tx, order)
		case phaseProcess:
			res, err = handler.Process(ctx, tx, order)
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("%s order rule %s: %w", ph, handler.Name(), err)
		}
		if !res.IsOK() {
			p.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"rule":     handler.Name(),
				"phase":    ph,
				"outcome":  res.Outcome,
				"codes":    res.CodeStrings(),
			}).Info("pipeline short-circuited on order rule")
			return res, nil
		}
	}

	return domain.OK(), nil
}
